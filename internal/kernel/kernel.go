// Package kernel wires the core components (frame allocator, paging
// mapper, region heap, object cache, interrupt table, scheduler, and
// process/syscall layer) into the single runtime object spec §2's data-flow
// narrative describes, replacing the module-level globals spec §9 calls
// out with one value created at boot.
package kernel

import (
	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/irq"
	"github.com/solixos/kernel-core/internal/kconst"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/klog"
	"github.com/solixos/kernel-core/internal/mm/frame"
	"github.com/solixos/kernel-core/internal/mm/heap"
	"github.com/solixos/kernel-core/internal/mm/paging"
	"github.com/solixos/kernel-core/internal/proc"
	"github.com/solixos/kernel-core/internal/sched"
)

// bootWindowBytes is the size of the identity-mapped boot window (spec
// §4.B: "identity-maps the first 4 MiB").
const bootWindowBytes = 4 << 20

// timerLine is the hardware IRQ line wired to the timer driver (IRQ0 in
// the PIC numbering spec §4.E assumes, before remapping).
const timerLine = 0

// Kernel owns every core component plus the glue between them.
type Kernel struct {
	Log     *klog.Buffer
	Frames  *frame.Allocator
	AS      *paging.AddressSpace
	Heap    *heap.Heap
	Kmalloc *KmallocSlab
	IRQ     *irq.Table
	Sched   *sched.Runqueue
	Procs   *proc.Manager
	Syscalls *proc.Syscalls

	cfg   BootConfig
	ticks uint64
}

// New constructs a kernel from cfg but does not yet create the init
// process or enable paging — that is Boot's job, mirroring the split
// between the teacher's low-level setup and its boot sequence proper.
func New(cfg BootConfig) (*Kernel, error) {
	k := &Kernel{cfg: cfg}

	k.Log = klog.New(cfg.LogThreshold, clockAdapter{k})
	k.Log.EnableTimestamps(cfg.EnableTimestamps)

	k.Heap = heap.New(cfg.HeapSize, k.Log)
	k.Frames = frame.New(cfg.TotalFrames)

	tableAlloc := NewHeapTableAllocator(k.Heap)
	k.AS = paging.NewAddressSpace(tableAlloc, nil, k.Log)

	pages := NewFramePageSource(k.Frames, k.AS, bootWindowBytes)
	kmalloc, err := NewKmallocSlab(pages, k.Heap, k.Log)
	if err != nil {
		return nil, errors.WithMessage(err, "kernel: building kmalloc size classes")
	}
	k.Kmalloc = kmalloc

	idle := sched.NewRealtimeEntity(0, sched.PolicyIdle, sched.RTPrioBand-1)
	k.Sched = sched.NewRunqueue(idle, k.Log, func(prev, next *sched.Entity) {
		k.onContextSwitch(prev, next)
	})

	k.IRQ = irq.NewTable(k.Log, faultReporter{k.Log})
	k.IRQ.SetTimerLine(timerLine, func() { k.ticks++; k.Sched.Tick() })
	// The timer driver itself (spec §1, out of scope) registers a handler
	// that increments its own monotonic counter; dispatch separately
	// invokes the scheduler tick afterward (spec §4.E). A no-op stands in
	// for the driver's handler here.
	if err := k.IRQ.RequestIRQ(timerLine, func(int, interface{}) {}, nil, false, "timer"); err != nil {
		return nil, errors.WithMessage(err, "kernel: registering timer handler")
	}

	k.Procs = proc.NewManager(k.Sched, tickClock{k}, k.Log)
	k.Syscalls = proc.NewSyscalls(k.Procs, nil, k, k)
	k.Syscalls.Register(k.IRQ)

	return k, nil
}

func (k *Kernel) onContextSwitch(prev, next *sched.Entity) {
	if next == nil || next.Owner == nil {
		k.Procs.SetCurrent(nil)
		return
	}
	if p, ok := next.Owner.(*proc.Process); ok {
		k.Procs.SetCurrent(p)
	}
}

// Boot identity-maps the boot window, enables paging, and creates PID 1
// (the init task), mirroring spec §4.H: "Process 1 is the init task,
// created synchronously at boot."
func (k *Kernel) Boot() (*proc.Process, error) {
	err := k.AS.IdentityMapBootWindow(bootWindowBytes, func(uint32) frame.Frame {
		f, _ := k.Frames.AllocFrame()
		return f
	})
	if err != nil {
		return nil, errors.WithMessage(err, "kernel: identity-mapping boot window")
	}
	k.AS.EnablePaging()

	init, err := k.Procs.CreateProcess(nil, "init", 0)
	if err != nil {
		return nil, errors.WithMessage(err, "kernel: creating init process")
	}
	k.Sched.Schedule()
	return init, nil
}

// Tick drives one timer interrupt: dispatch through the IRQ table's timer
// line, which in turn ticks the scheduler (spec §2 "Data flow on a timer
// tick").
func (k *Kernel) Tick() {
	k.IRQ.Dispatch(timerLine)
}

// Syscall dispatches a vector-0x80 trap (spec §6).
func (k *Kernel) Syscall(num int, args [3]uintptr) (uintptr, error) {
	return k.IRQ.Syscall(num, args)
}

// HeapStats and FrameStats implement proc.MemInfoSource for the meminfo
// syscall.
func (k *Kernel) HeapStats() (used, peak uint64) { return k.Heap.Stats() }
func (k *Kernel) FrameStats() (used, total uint32) {
	return k.Frames.UsedFrames(), k.Frames.TotalFrames()
}

// Debug subsystem identifiers for syscall #10 (spec §6 "debug").
const (
	DebugHeap = iota
	DebugFrames
	DebugProcs
	DebugIRQTimer
)

// Debug implements proc.Debugger: it logs the requested subsystem's state
// through klog and returns a subsystem-specific status word, rather than
// writing through a userspace pointer the way a real dump would (this
// model has no user address space to write into, same limitation
// proc.Syscalls documents for read/write/open).
func (k *Kernel) Debug(cmd int, arg uintptr) (uintptr, error) {
	switch cmd {
	case DebugHeap:
		used, peak := k.Heap.Stats()
		k.Log.Printk("<6>debug: heap used=%d peak=%d", used, peak)
		return uintptr(used), nil
	case DebugFrames:
		used, total := k.Frames.UsedFrames(), k.Frames.TotalFrames()
		k.Log.Printk("<6>debug: frames used=%d total=%d", used, total)
		return uintptr(used), nil
	case DebugProcs:
		n := k.Procs.Count()
		k.Log.Printk("<6>debug: procs count=%d", n)
		return uintptr(n), nil
	case DebugIRQTimer:
		d, err := k.IRQ.Line(timerLine)
		if err != nil {
			return ^uintptr(0), err
		}
		k.Log.Printk("<6>debug: timer total=%d unhandled=%d", d.Stats.Total, d.Stats.Unhandled)
		return uintptr(d.Stats.Total), nil
	default:
		return ^uintptr(0), errors.WithMessage(kerr.ErrInvalidArgument, "kernel: unknown debug subsystem")
	}
}

type tickClock struct{ k *Kernel }

func (c tickClock) Ticks() uint64 { return c.k.ticks }

// clockAdapter implements klog.Clock off the kernel's own tick counter —
// the only timing source this model has, per spec §5's "no other timing
// assumption beyond monotonicity."
type clockAdapter struct{ k *Kernel }

func (c clockAdapter) Now() (seconds, millis uint64) {
	freq := uint64(c.k.cfg.TimerFrequencyHz)
	if freq == 0 {
		freq = kconst.TimerFrequencyHz
	}
	t := c.k.ticks
	seconds = t / freq
	millis = (t % freq) * 1000 / freq
	return
}

// faultReporter adapts klog to irq.FaultReporter (spec §4.E: CPU faults
// are always logged before the table's panic path runs).
type faultReporter struct {
	log *klog.Buffer
}

func (f faultReporter) ReportFault(vector int, name string) {
	f.log.Printk("<0>fault: vector=%d %s", vector, name)
}
