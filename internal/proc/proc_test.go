package proc

import (
	"testing"

	"github.com/solixos/kernel-core/internal/sched"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t uint64 }

func (c *fakeClock) Ticks() uint64 { return c.t }

func newTestManager() *Manager {
	idle := sched.NewRealtimeEntity(0, sched.PolicyIdle, sched.RTPrioBand-1)
	rq := sched.NewRunqueue(idle, nil, nil)
	return NewManager(rq, &fakeClock{}, nil)
}

func TestCreateProcessAssignsIncreasingPIDs(t *testing.T) {
	m := newTestManager()
	a, err := m.CreateProcess(nil, "init", 0)
	require.NoError(t, err)
	require.Equal(t, 1, a.PID)
	require.Equal(t, StateReady, a.State)

	b, err := m.CreateProcess(a, "child", 0)
	require.NoError(t, err)
	require.Equal(t, 2, b.PID)
	require.Equal(t, 1, b.PPID)
}

func TestForkDuplicatesCwdAndFiles(t *testing.T) {
	m := newTestManager()
	parent, err := m.CreateProcess(nil, "init", 0)
	require.NoError(t, err)
	parent.Cwd = "/home"

	child, err := m.Fork(parent)
	require.NoError(t, err)
	require.Equal(t, "/home", child.Cwd)
	require.Equal(t, parent.PID, child.PPID)
}

func TestExitThenWaitReapsZombie(t *testing.T) {
	m := newTestManager()
	parent, _ := m.CreateProcess(nil, "init", 0)
	child, _ := m.CreateProcess(parent, "child", 0)

	m.Exit(child, 7)
	got, ok := m.Lookup(child.PID)
	require.True(t, ok)
	require.Equal(t, StateZombie, got.State)

	pid, status, err := m.Wait(parent)
	require.NoError(t, err)
	require.Equal(t, child.PID, pid)
	require.Equal(t, 7, status)

	_, ok = m.Lookup(child.PID)
	require.False(t, ok)
}

func TestWaitWithNoZombieChildrenFails(t *testing.T) {
	m := newTestManager()
	parent, _ := m.CreateProcess(nil, "init", 0)
	_, _, err := m.Wait(parent)
	require.Error(t, err)
}

func TestProcessTableFullReturnsOutOfMemory(t *testing.T) {
	m := newTestManager()
	var last *Process
	var err error
	for i := 0; i < 64; i++ {
		last, err = m.CreateProcess(last, "p", 0)
		require.NoError(t, err)
	}
	_, err = m.CreateProcess(last, "overflow", 0)
	require.Error(t, err)
}

func TestPIDNotReusedWhileZombie(t *testing.T) {
	m := newTestManager()
	parent, _ := m.CreateProcess(nil, "init", 0)
	child, _ := m.CreateProcess(parent, "child", 0)
	m.Exit(child, 0)

	other, err := m.CreateProcess(parent, "other", 0)
	require.NoError(t, err)
	require.NotEqual(t, child.PID, other.PID)
}
