package proc

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kconst"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/sched"
)

// Logger is the subset of klog.Buffer the process layer needs.
type Logger interface {
	Printk(format string, args ...interface{})
}

// Clock supplies the monotonic tick used to stamp process creation time.
type Clock interface {
	Ticks() uint64
}

// Manager owns the fixed process table, the PID bitmap, and the
// monotonically increasing PID counter (spec §4.H).
//
// Open question resolved (spec §9): the source's find_free_pid conflates
// "free slot" with "free PID" and treats PID 0 as a failure sentinel, which
// cannot be reconciled with PID 0 being a valid process slot. This
// implementation keeps the two concepts separate — table slot index (reused
// via the bitmap, purely an implementation detail) versus PID (an
// ever-increasing value, never reused while any live or zombie process
// holds it) — and reserves PID 0 for the idle task, which is constructed
// directly at boot and never goes through CreateProcess. That sidesteps the
// ambiguity instead of guessing the original's intent.
type Manager struct {
	mu sync.Mutex

	table    [kconst.MaxProcesses]*Process
	occupied [(kconst.MaxProcesses + 63) / 64]uint64
	lastSlot int

	nextPID int

	current *Process
	rq      *sched.Runqueue
	clock   Clock
	log     Logger
}

// NewManager creates a process manager with no processes. nextPID starts
// at 1; PID 0 is reserved for the idle task.
func NewManager(rq *sched.Runqueue, clock Clock, log Logger) *Manager {
	return &Manager{rq: rq, clock: clock, log: log, nextPID: 1}
}

func (m *Manager) bitSet(i int) bool { return m.occupied[i/64]&(1<<uint(i%64)) != 0 }
func (m *Manager) setBit(i int)      { m.occupied[i/64] |= 1 << uint(i%64) }
func (m *Manager) clearBit(i int)    { m.occupied[i/64] &^= 1 << uint(i%64) }

// findFreeSlot scans the occupancy bitmap warm-started from the last
// allocation for locality (spec §4.H "create_process").
func (m *Manager) findFreeSlot() (int, bool) {
	n := kconst.MaxProcesses
	for scanned := 0; scanned < n; scanned++ {
		idx := (m.lastSlot + scanned) % n
		if !m.bitSet(idx) {
			return idx, true
		}
	}
	return 0, false
}

// Current returns the currently running process, or nil before boot wires
// one in.
func (m *Manager) Current() *Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrent installs the running process, normally invoked from the
// scheduler's context-switch callback (spec §4.G "Schedule").
func (m *Manager) SetCurrent(p *Process) {
	m.mu.Lock()
	if m.current != nil && m.current.State == StateRunning {
		m.current.State = StateReady
	}
	if p != nil {
		p.State = StateRunning
	}
	m.current = p
	m.mu.Unlock()
}

// CreateProcess allocates a process-control block: find a free slot,
// allocate a kernel stack, initialize the PCB as READY, and enqueue its
// schedulable entity (spec §4.H "create_process").
func (m *Manager) CreateProcess(parent *Process, name string, nice int) (*Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.findFreeSlot()
	if !ok {
		return nil, errors.WithMessage(kerr.ErrOutOfMemory, "proc: process table full")
	}

	pid := m.nextPID
	m.nextPID++

	p := &Process{
		PID:         pid,
		State:       StateReady,
		Name:        name,
		KernelStack: make([]byte, kconst.KernelStackSize),
		Cwd:         "/",
		Entity:      sched.NewEntity(pid, nice),
		slot:        slot,
	}
	p.Entity.Owner = p
	if parent != nil {
		p.PPID = parent.PID
		p.Files = parent.Files
		p.Cwd = parent.Cwd
	}
	if m.clock != nil {
		p.CreatedAtTick = m.clock.Ticks()
	}

	m.table[slot] = p
	m.setBit(slot)
	m.lastSlot = (slot + 1) % kconst.MaxProcesses

	if m.rq != nil {
		m.rq.Enqueue(p.Entity, false)
	}
	return p, nil
}

// Fork duplicates the caller: a new process with the same file table, cwd,
// and nice-derived entity weight, returning the child (spec §6 syscall #2:
// "duplicates caller").
func (m *Manager) Fork(parent *Process) (*Process, error) {
	nice := sched.PrioToNice(parent.Entity.StaticPrio)
	return m.CreateProcess(parent, parent.Name, nice)
}

// Exit marks p a zombie (code recorded, kernel stack released, entity
// pulled off the runqueue) but leaves its slot and PID reserved until a
// parent reaps it via Wait (spec §4.H "exit", supplemented per SPEC_FULL).
func (m *Manager) Exit(p *Process, code int) {
	m.mu.Lock()
	p.ExitCode = code
	p.State = StateZombie
	p.KernelStack = nil
	if m.rq != nil {
		m.rq.Dequeue(p.Entity)
	}
	m.mu.Unlock()

	if m.rq != nil {
		m.rq.Schedule()
	}
}

// Wait finds a zombie child of parent, releases its table slot and PID,
// and returns its PID and exit code. Returns kerr.ErrNotFound if parent has
// no zombie children — the core models Wait as a non-blocking poll; a
// caller wanting to block loops this against the idle suspension point
// (spec §5).
func (m *Manager) Wait(parent *Process) (childPID int, status int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, child := range m.table {
		if child == nil || child.PPID != parent.PID || child.State != StateZombie {
			continue
		}
		child.State = StateTerminated
		m.table[i] = nil
		m.clearBit(i)
		return child.PID, child.ExitCode, nil
	}
	return 0, 0, errors.WithMessage(kerr.ErrNotFound, "proc: no zombie children")
}

// Lookup returns the process with the given PID, if it currently occupies
// a slot (live or zombie).
func (m *Manager) Lookup(pid int) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.table {
		if p != nil && p.PID == pid {
			return p, true
		}
	}
	return nil, false
}

// Snapshot returns every currently occupied process-control block, in slot
// order. It exists for host-side reporting (cmd/kernelsim's ps subcommand);
// the kernel proper never needs to enumerate the whole table at once.
func (m *Manager) Snapshot() []*Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Process, 0, kconst.MaxProcesses)
	for _, p := range m.table {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Count reports the number of occupied slots.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.table {
		if p != nil {
			n++
		}
	}
	return n
}
