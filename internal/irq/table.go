// Package irq implements the interrupt descriptor table, dispatch core,
// and per-line flow-control model (spec §4.E, §4.F): 256 gate slots, PIC
// remapping to base 32, the syscall trap at vector 0x80, and the
// edge/level/simple/percpu policies layered above raw dispatch.
package irq

import (
	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kconst"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/kpanic"
)

// FaultReporter is invoked for CPU faults (vectors 0..19); spec §4.E/§7:
// always fatal.
type FaultReporter interface {
	ReportFault(vector int, name string)
}

// Logger is the subset of klog.Buffer the table needs.
type Logger interface {
	Printk(format string, args ...interface{})
}

// TimerTick is invoked whenever the line registered as the timer IRQ fires,
// after its handler runs (spec §4.E: "a timer-line IRQ additionally invokes
// the scheduler tick").
type TimerTick func()

// Table owns NR_IRQS descriptors plus the fault/syscall routing metadata.
type Table struct {
	lines [kconst.NRIrqs]*Descriptor

	masterBase int // IRQ_BASE after PIC remap (32)
	slaveBase  int // 40: lines 8..15 route through the slave PIC

	faultReporter FaultReporter
	log           Logger

	timerLine int
	onTick    TimerTick

	syscalls map[int]SyscallFunc
}

// SyscallFunc is one entry of the vector-0x80 call table (spec §6).
type SyscallFunc func(args [3]uintptr) (uintptr, error)

// NewTable creates a table with all NR_IRQS lines present but unowned.
func NewTable(log Logger, fault FaultReporter) *Table {
	t := &Table{
		masterBase: kconst.IrqBase,
		slaveBase:  kconst.IrqBase + 8,
		log:        log,
		faultReporter: fault,
		timerLine:     -1,
		syscalls:      make(map[int]SyscallFunc),
	}
	for i := range t.lines {
		t.lines[i] = newDescriptor(i)
	}
	return t
}

// Line returns the descriptor for a hardware IRQ line (0..15 before
// remapping; the table itself tracks the post-remap vector separately).
func (t *Table) Line(line int) (*Descriptor, error) {
	if line < 0 || line >= len(t.lines) {
		return nil, errors.WithMessagef(kerr.ErrInvalidArgument, "irq: line %d out of range", line)
	}
	return t.lines[line], nil
}

// SetTimerLine designates which line's dispatch also ticks the scheduler.
func (t *Table) SetTimerLine(line int, onTick TimerTick) {
	t.timerLine = line
	t.onTick = onTick
}

// RegisterSyscall installs a call-table entry for vector 0x80's
// demultiplexer (spec §6's numbered syscall table).
func (t *Table) RegisterSyscall(num int, fn SyscallFunc) {
	t.syscalls[num] = fn
}

// Syscall dispatches a vector-0x80 trap. Unknown call numbers log a
// warning and return failure without touching caller state (spec §4.E).
func (t *Table) Syscall(num int, args [3]uintptr) (uintptr, error) {
	fn, ok := t.syscalls[num]
	if !ok {
		if t.log != nil {
			t.log.Printk("<4>syscall: unknown call number %d", num)
		}
		return ^uintptr(0), errors.WithMessagef(kerr.ErrInvalidArgument, "unknown syscall %d", num)
	}
	return fn(args)
}

// Fault routes a CPU exception (vectors 0..19) to the fault reporter and
// halts — spec §4.E/§7: always fatal.
func (t *Table) Fault(vector int, name string) {
	if t.faultReporter != nil {
		t.faultReporter.ReportFault(vector, name)
	}
	kpanic.Report(t.log, kpanic.ReasonUnhandledFault, kpanic.Diagnostics{
		ExtraContext: name,
	})
}

// RequestIRQ installs a handler on line (spec §4.F).
func (t *Table) RequestIRQ(line int, handler HandlerFunc, data interface{}, shared bool, name string) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	return d.requestIRQ(handler, data, shared, name)
}

// FreeIRQ clears the handler and disables the line.
func (t *Table) FreeIRQ(line int) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	d.freeIRQ()
	return nil
}

// Enable/Disable implement the nested depth model (spec §4.F).
func (t *Table) Enable(line int) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	d.enableLocked()
	return nil
}

func (t *Table) Disable(line int) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	d.disableLocked()
	return nil
}

// Mask/Unmask delegate straight to the chip, recording no stats of
// their own (stats accrue at dispatch time).
func (t *Table) Mask(line int) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	if d.chip != nil {
		d.chip.Mask(line)
	}
	return nil
}

func (t *Table) Unmask(line int) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	if d.chip != nil {
		d.chip.Unmask(line)
	}
	return nil
}

// EOI applies the master/slave EOI policy (spec §4.E): lines below the
// slave base are master-only and get one EOI to the master chip; lines at
// or above the slave base are expected to be wired to a chip that EOIs the
// slave before the master itself (the chip, not the table, owns that
// cascade since only it knows which controller is which). SimpleFlow issues
// no EOI of its own, so a handler on such a line calls this directly.
func (t *Table) EOI(line int) error {
	d, err := t.Line(line)
	if err != nil {
		return err
	}
	if d.chip != nil {
		d.chip.EOI(line)
	}
	return nil
}

// Dispatch runs the flow-control policy for a raised hardware line (spec
// §4.F). A line with no handler increments Unhandled and returns. A line
// already mid-handler (masked by its own flow policy) records the raise as
// Pending instead of re-entering.
func (t *Table) Dispatch(line int) {
	d, err := t.Line(line)
	if err != nil {
		return
	}

	d.Stats.Total++

	if d.handler == nil {
		d.Stats.Unhandled++
		return
	}
	if d.disabled {
		d.Stats.Spurious++
		return
	}
	if d.inProgress {
		d.Stats.Pending++
		return
	}

	d.inProgress = true
	d.flow.Handle(d)
	d.inProgress = false

	if line == t.timerLine && t.onTick != nil {
		t.onTick()
	}
}
