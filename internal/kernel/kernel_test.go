package kernel

import (
	"testing"

	"github.com/solixos/kernel-core/internal/proc"
	"github.com/stretchr/testify/require"
)

func testConfig() BootConfig {
	cfg := DefaultBootConfig()
	cfg.TotalFrames = 2048
	cfg.HeapSize = 1 << 20
	return cfg
}

func TestBootCreatesInitAsPID1(t *testing.T) {
	k, err := New(testConfig())
	require.NoError(t, err)

	init, err := k.Boot()
	require.NoError(t, err)
	require.Equal(t, 1, init.PID)
	require.True(t, k.AS.Enabled())
	require.Equal(t, init, k.Procs.Current())
}

func TestTickAdvancesSchedulerAndTicks(t *testing.T) {
	k, err := New(testConfig())
	require.NoError(t, err)
	_, err = k.Boot()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		k.Tick()
	}
	require.EqualValues(t, 5, k.ticks)
}

func TestKmallocRoundTrip(t *testing.T) {
	k, err := New(testConfig())
	require.NoError(t, err)

	buf, err := k.Kmalloc.Alloc(40)
	require.NoError(t, err)
	require.Len(t, buf, 40)
	require.NoError(t, k.Kmalloc.Free(buf))
}

func TestSyscallExitAndWait(t *testing.T) {
	k, err := New(testConfig())
	require.NoError(t, err)
	init, err := k.Boot()
	require.NoError(t, err)

	child, err := k.Procs.CreateProcess(init, "child", 0)
	require.NoError(t, err)

	// Switch to the child so the exit syscall acts on it.
	k.Procs.SetCurrent(child)
	_, err = k.Syscall(1, [3]uintptr{7, 0, 0})
	require.NoError(t, err)

	require.Equal(t, proc.StateZombie, child.State)

	k.Procs.SetCurrent(init)
	pid, err := k.Syscall(8, [3]uintptr{})
	require.NoError(t, err)
	require.EqualValues(t, child.PID, pid)
}

func TestMemInfoSyscall(t *testing.T) {
	k, err := New(testConfig())
	require.NoError(t, err)
	_, err = k.Boot()
	require.NoError(t, err)

	_, err = k.Syscall(9, [3]uintptr{})
	require.NoError(t, err)
	info := k.Syscalls.LastMemInfo()
	require.True(t, info.FramesTotal > 0)
}

func TestDebugSyscallDumpsSubsystems(t *testing.T) {
	k, err := New(testConfig())
	require.NoError(t, err)
	_, err = k.Boot()
	require.NoError(t, err)

	ret, err := k.Syscall(10, [3]uintptr{DebugProcs, 0, 0})
	require.NoError(t, err)
	require.EqualValues(t, 1, ret) // init is the only process at this point

	_, err = k.Syscall(10, [3]uintptr{DebugIRQTimer, 0, 0})
	require.NoError(t, err)

	_, err = k.Syscall(10, [3]uintptr{99, 0, 0})
	require.Error(t, err)
}
