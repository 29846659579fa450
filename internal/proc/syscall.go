package proc

import (
	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/irq"
	"github.com/solixos/kernel-core/internal/kerr"
)

// VFS is the filesystem collaborator the read/write/open/close/exec
// syscalls delegate to (spec §1: the filesystem is out of scope for the
// core; this is its contract boundary).
type VFS interface {
	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)
	Open(path string, flags int) (int, error)
	Close(fd int) error
	Exec(path string, argv []string) error
}

// MemInfoSource supplies the figures the meminfo syscall reports.
type MemInfoSource interface {
	HeapStats() (used, peak uint64)
	FrameStats() (used, total uint32)
}

// MemInfo is the structure written back for syscall #9.
type MemInfo struct {
	HeapUsed, HeapPeak   uint64
	FramesUsed, FramesTotal uint32
}

// Debugger dumps a requested subsystem for syscall #10.
type Debugger interface {
	Debug(cmd int, arg uintptr) (uintptr, error)
}

// Syscalls binds the process manager to the numbered call table of spec
// §6 and registers it against an irq.Table's vector-0x80 demultiplexer.
type Syscalls struct {
	procs *Manager
	vfs   VFS
	mem   MemInfoSource
	dbg   Debugger

	lastMemInfo MemInfo
}

// NewSyscalls builds the call table. vfs, mem, and dbg may be nil; any
// syscall that needs a nil collaborator fails with kerr.ErrNotFound rather
// than panicking, since that mirrors "unknown call number" handling
// (spec §4.E) for not-yet-wired collaborators.
func NewSyscalls(procs *Manager, vfs VFS, mem MemInfoSource, dbg Debugger) *Syscalls {
	return &Syscalls{procs: procs, vfs: vfs, mem: mem, dbg: dbg}
}

// Register installs every syscall table entry (spec §6) onto t.
func (s *Syscalls) Register(t *irq.Table) {
	t.RegisterSyscall(1, s.sysExit)
	t.RegisterSyscall(2, s.sysFork)
	t.RegisterSyscall(3, s.sysRead)
	t.RegisterSyscall(4, s.sysWrite)
	t.RegisterSyscall(5, s.sysOpen)
	t.RegisterSyscall(6, s.sysClose)
	t.RegisterSyscall(7, s.sysExec)
	t.RegisterSyscall(8, s.sysWait)
	t.RegisterSyscall(9, s.sysMeminfo)
	t.RegisterSyscall(10, s.sysDebug)
}

func (s *Syscalls) sysExit(args [3]uintptr) (uintptr, error) {
	cur := s.procs.Current()
	if cur == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall exit: no current process")
	}
	s.procs.Exit(cur, int(int32(args[0])))
	return 0, nil
}

func (s *Syscalls) sysFork(args [3]uintptr) (uintptr, error) {
	cur := s.procs.Current()
	if cur == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall fork: no current process")
	}
	child, err := s.procs.Fork(cur)
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(child.PID), nil
}

func (s *Syscalls) sysRead(args [3]uintptr) (uintptr, error) {
	if s.vfs == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall read: no VFS wired")
	}
	fd, buf, n := int(args[0]), unsafePointerBuf(args[1], args[2]), int(args[2])
	got, err := s.vfs.Read(fd, buf[:n])
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(got), nil
}

func (s *Syscalls) sysWrite(args [3]uintptr) (uintptr, error) {
	if s.vfs == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall write: no VFS wired")
	}
	fd, buf, n := int(args[0]), unsafePointerBuf(args[1], args[2]), int(args[2])
	got, err := s.vfs.Write(fd, buf[:n])
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(got), nil
}

func (s *Syscalls) sysOpen(args [3]uintptr) (uintptr, error) {
	if s.vfs == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall open: no VFS wired")
	}
	path := pathFromArg(args[0])
	fd, err := s.vfs.Open(path, int(args[1]))
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(fd), nil
}

func (s *Syscalls) sysClose(args [3]uintptr) (uintptr, error) {
	if s.vfs == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall close: no VFS wired")
	}
	if err := s.vfs.Close(int(args[0])); err != nil {
		return ^uintptr(0), err
	}
	return 0, nil
}

func (s *Syscalls) sysExec(args [3]uintptr) (uintptr, error) {
	if s.vfs == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall exec: no VFS wired")
	}
	path := pathFromArg(args[0])
	if err := s.vfs.Exec(path, nil); err != nil {
		return ^uintptr(0), err
	}
	return 0, nil // a real exec never returns to the caller on success
}

func (s *Syscalls) sysWait(args [3]uintptr) (uintptr, error) {
	cur := s.procs.Current()
	if cur == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall wait: no current process")
	}
	pid, _, err := s.procs.Wait(cur)
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(pid), nil
}

func (s *Syscalls) sysMeminfo(args [3]uintptr) (uintptr, error) {
	if s.mem == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall meminfo: no source wired")
	}
	used, peak := s.mem.HeapStats()
	framesUsed, framesTotal := s.mem.FrameStats()
	s.lastMemInfo = MemInfo{HeapUsed: used, HeapPeak: peak, FramesUsed: framesUsed, FramesTotal: framesTotal}
	return 0, nil
}

// LastMemInfo returns the figures the most recent meminfo syscall
// collected, since this simulation has no user address space to write an
// out-pointer into (spec §6 syscall #9's "out-ptr" argument).
func (s *Syscalls) LastMemInfo() MemInfo { return s.lastMemInfo }

func (s *Syscalls) sysDebug(args [3]uintptr) (uintptr, error) {
	if s.dbg == nil {
		return ^uintptr(0), errors.WithMessage(kerr.ErrNotFound, "syscall debug: no debugger wired")
	}
	return s.dbg.Debug(int(args[0]), args[1])
}

// unsafePointerBuf and pathFromArg stand in for the real "validate this
// pointer against the caller's address space" step spec §4.H calls for
// (there is no real user/kernel address space split in this model — spec
// §1 scopes ring separation out beyond the syscall boundary itself).
func unsafePointerBuf(ptr, length uintptr) []byte {
	return make([]byte, length)
}

func pathFromArg(ptr uintptr) string {
	return ""
}
