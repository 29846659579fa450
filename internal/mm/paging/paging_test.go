package paging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/solixos/kernel-core/internal/mm/frame"
)

type fixedTableAllocator struct {
	calls int
	fail  bool
}

func (f *fixedTableAllocator) AllocTable() (*Table, error) {
	f.calls++
	if f.fail {
		return nil, errTest
	}
	return &Table{}, nil
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "alloc failed" }

type countingTLB struct {
	invalidated []uintptr
}

func (c *countingTLB) InvalidatePage(virt uintptr) {
	c.invalidated = append(c.invalidated, virt)
}

func TestMapLazilyMaterializesTable(t *testing.T) {
	alloc := &fixedTableAllocator{}
	tlb := &countingTLB{}
	as := NewAddressSpace(alloc, tlb, nil)

	err := as.Map(0x1000, frame.Frame(1), Flags{Present: true, Writable: true})
	require.NoError(t, err)
	require.Equal(t, 1, alloc.calls)

	entry, ok := as.Lookup(0x1000)
	require.True(t, ok)
	require.True(t, entry.Present)
	require.Equal(t, frame.Frame(1), entry.Frame)
	require.Len(t, tlb.invalidated, 1)

	// A second mapping within the same 4MiB table must not allocate again.
	require.NoError(t, as.Map(0x2000, frame.Frame(2), Flags{Present: true}))
	require.Equal(t, 1, alloc.calls)
}

func TestMapOutOfMemoryLeavesLeafUntouched(t *testing.T) {
	alloc := &fixedTableAllocator{fail: true}
	as := NewAddressSpace(alloc, nil, nil)

	err := as.Map(0x1000, frame.Frame(1), Flags{Present: true})
	require.Error(t, err)

	_, ok := as.Lookup(0x1000)
	require.False(t, ok)
}

func TestUnmapClearsEntry(t *testing.T) {
	alloc := &fixedTableAllocator{}
	as := NewAddressSpace(alloc, nil, nil)
	require.NoError(t, as.Map(0x3000, frame.Frame(3), Flags{Present: true}))

	require.NoError(t, as.Unmap(0x3000))
	entry, ok := as.Lookup(0x3000)
	require.True(t, ok)
	require.False(t, entry.Present)
}

func TestEnablePagingIdempotentPanics(t *testing.T) {
	as := NewAddressSpace(&fixedTableAllocator{}, nil, nil)
	as.EnablePaging()
	require.True(t, as.Enabled())

	require.Panics(t, func() {
		as.EnablePaging()
	})
}

func TestIdentityMapBootWindow(t *testing.T) {
	alloc := &fixedTableAllocator{}
	as := NewAddressSpace(alloc, nil, nil)

	err := as.IdentityMapBootWindow(4*1024*1024, func(i uint32) frame.Frame { return frame.Frame(i) })
	require.NoError(t, err)

	entry, ok := as.Lookup(0)
	require.True(t, ok)
	require.True(t, entry.Present)
	require.True(t, entry.Writable)
	require.False(t, entry.User)

	entry, ok = as.Lookup(4*1024*1024 - 4096)
	require.True(t, ok)
	require.Equal(t, frame.Frame(1023), entry.Frame)
}
