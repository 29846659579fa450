package slab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type memPages struct{}

func (memPages) AllocPages(n int) ([]byte, error) {
	return make([]byte, n*pageSizeConst), nil
}

func (memPages) FreePages([]byte) {}

func TestAllocFreeInvariants(t *testing.T) {
	c, err := New("test-objs", Options{ObjectSize: 64, Alignment: 16}, memPages{}, nil)
	require.NoError(t, err)

	var handles []Handle
	for i := 0; i < c.numPerSlab+5; i++ {
		h, obj, err := c.Alloc()
		require.NoError(t, err)
		require.Len(t, obj, 64)
		handles = append(handles, h)
	}

	_, _, active, _, _ := c.Stats()
	require.Equal(t, uint64(len(handles)), active)

	for _, h := range handles {
		c.Free(h)
	}
	_, _, active, _, _ = c.Stats()
	require.Equal(t, uint64(0), active)
}

func TestObjectContainment(t *testing.T) {
	c, err := New("contain", Options{ObjectSize: 48, Alignment: 16}, memPages{}, nil)
	require.NoError(t, err)

	_, obj, err := c.Alloc()
	require.NoError(t, err)
	require.Len(t, obj, 48)
}

func TestCtorRunsOncePerObjectAtSlabCreation(t *testing.T) {
	var ctorCalls int
	c, err := New("ctor", Options{
		ObjectSize: 32,
		Ctor:       func(obj []byte) { ctorCalls++ },
	}, memPages{}, nil)
	require.NoError(t, err)

	h1, _, err := c.Alloc()
	require.NoError(t, err)
	afterFirstAlloc := ctorCalls
	require.Greater(t, afterFirstAlloc, 0, "ctor should run when the slab backing the first alloc is created")

	// Allocating more objects from the same (still partial) slab must not
	// invoke the constructor again.
	_, _, err = c.Alloc()
	require.NoError(t, err)
	require.Equal(t, afterFirstAlloc, ctorCalls)

	c.Free(h1)
}

func TestSlabColorRotation(t *testing.T) {
	// Chosen so pageBytes(4096)/objSize(100) = 40 objects with 96 bytes of
	// slack, giving colorRange = 96/16 = 6 and thus distinct 16-byte-spaced
	// colors for at least the first three slabs.
	c, err := New("colored", Options{
		ObjectSize:   100,
		Alignment:    16,
		HWCacheAlign: true,
	}, memPages{}, nil)
	require.NoError(t, err)
	require.Equal(t, 40, c.numPerSlab)

	colors := map[int]bool{}
	var handles []Handle
	for slabN := 0; slabN < 3; slabN++ {
		for i := 0; i < c.numPerSlab; i++ {
			h, _, err := c.Alloc()
			require.NoError(t, err)
			handles = append(handles, h)
		}
	}

	seen := map[*Slab]bool{}
	for _, h := range handles {
		if !seen[h.slab] {
			seen[h.slab] = true
			colors[h.slab.color%64] = true
		}
	}
	require.Len(t, colors, 3, "three slabs should have three distinct color offsets")

	var sortedColors []int
	for col := range colors {
		sortedColors = append(sortedColors, col)
	}
	require.ElementsMatch(t, []int{0, 16, 32}, sortedColors)
}

func TestFreeUnknownSlabMagicPanics(t *testing.T) {
	c, err := New("bad", Options{ObjectSize: 32}, memPages{}, nil)
	require.NoError(t, err)

	h, _, err := c.Alloc()
	require.NoError(t, err)
	h.slab.magic = 0xDEAD

	require.Panics(t, func() {
		c.Free(h)
	})
}
