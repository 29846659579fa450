package frame

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/solixos/kernel-core/internal/kerr"
)

func popcount(a *Allocator) uint32 {
	var n uint32
	for _, w := range a.bitmap {
		n += uint32(bits.OnesCount64(w))
	}
	return n
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := New(16)
	var allocated []Frame
	for i := 0; i < 16; i++ {
		f, err := a.AllocFrame()
		require.NoError(t, err)
		allocated = append(allocated, f)
	}

	require.Equal(t, uint32(16), a.UsedFrames())
	require.Equal(t, uint32(16), popcount(a))

	_, err := a.AllocFrame()
	require.ErrorIs(t, err, kerr.ErrOutOfMemory)

	for _, f := range allocated {
		require.NoError(t, a.FreeFrame(f))
	}
	require.Equal(t, uint32(0), a.UsedFrames())
	require.Equal(t, uint32(0), popcount(a))
}

func TestNextFitWrapsAround(t *testing.T) {
	a := New(4)
	f0, _ := a.AllocFrame()
	f1, _ := a.AllocFrame()
	require.NoError(t, a.FreeFrame(f0))
	f2, _ := a.AllocFrame()
	f3, _ := a.AllocFrame()
	// next-fit: the cursor sits past f1, so f2 and f3 come from the
	// untouched frames rather than the freed f0.
	require.ElementsMatch(t, []Frame{f0, f1, f2, f3}, []Frame{0, 1, 2, 3})
	// the cursor has now reached the end, so the next scan wraps back to
	// index 0 and picks up the freed frame f0.
	f4, err := a.AllocFrame()
	require.NoError(t, err)
	require.Equal(t, f0, f4)
}

func TestFreeAlreadyFreeIsRejected(t *testing.T) {
	a := New(4)
	f, _ := a.AllocFrame()
	require.NoError(t, a.FreeFrame(f))
	require.Error(t, a.FreeFrame(f))
}
