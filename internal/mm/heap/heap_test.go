package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// blockList walks the heap's header chain and returns (used?, payloadSize)
// pairs in address order, for asserting on chain shape.
func blockList(t *testing.T, h *Heap) []struct {
	Used bool
	Size uint32
} {
	t.Helper()
	var out []struct {
		Used bool
		Size uint32
	}
	off := uint32(0)
	for {
		tag, size, _, next, _ := h.readHeader(off)
		out = append(out, struct {
			Used bool
			Size uint32
		}{Used: tag == magicUsed, Size: size})
		if next == noLink {
			break
		}
		off = uint32(next)
	}
	return out
}

func TestBestFitSplitScenario(t *testing.T) {
	// Sized so the three allocations below consume the region exactly
	// (header + 100) + (header + 200) + (header + 52), matching spec §8
	// scenario 1's {used 100, free 200, used 50} shape up to the word
	// rounding Alloc applies to every request (50 becomes 52).
	h := New(412, nil)

	h1, err := h.Alloc(100)
	require.NoError(t, err)
	h2, err := h.Alloc(200)
	require.NoError(t, err)
	h3, err := h.Alloc(50)
	require.NoError(t, err)
	_ = h1
	_ = h3

	blocks := blockList(t, h)
	require.Len(t, blocks, 3, "the three allocations should exactly fill the region")

	h.Free(h2)

	blocks = blockList(t, h)
	require.Len(t, blocks, 3)
	require.True(t, blocks[0].Used)
	require.False(t, blocks[1].Used)
	require.True(t, blocks[2].Used)

	// Allocate 64: best-fit should pick the freed 200-byte block (the only
	// free block) and split off the remainder as a free tail.
	h4, err := h.Alloc(64)
	require.NoError(t, err)
	_ = h4

	blocks = blockList(t, h)
	require.Len(t, blocks, 4)
	require.True(t, blocks[0].Used)
	require.True(t, blocks[1].Used)
	require.False(t, blocks[2].Used)
	require.True(t, blocks[3].Used)
}

func TestCoalescingAfterFree(t *testing.T) {
	h := New(4096, nil)
	a, _ := h.Alloc(64)
	b, _ := h.Alloc(64)
	c, _ := h.Alloc(64)
	_ = a
	_ = c

	h.Free(b)
	blocks := blockList(t, h)
	// no two adjacent blocks may both be free; b's neighbors are used, so
	// this free should remain a lone free block (not a coalescing test by
	// itself) — assert shape directly instead.
	require.Len(t, blocks, 4) // 3 used + 1 tail free remainder from initial 4096 region

	h.Free(a)
	h.Free(c)
	blocks = blockList(t, h)
	// everything should have coalesced into a single free block.
	require.Len(t, blocks, 1)
	require.False(t, blocks[0].Used)
}

func TestDoubleFreePanics(t *testing.T) {
	h := New(4096, nil)
	ptr, err := h.Alloc(32)
	require.NoError(t, err)

	h.Free(ptr)
	require.Panics(t, func() {
		h.Free(ptr)
	})
}

func TestHeaderCorruptionPanics(t *testing.T) {
	h := New(4096, nil)
	ptr, err := h.Alloc(32)
	require.NoError(t, err)

	// Flip a single byte inside the block's header.
	h.data[0] ^= 0xFF

	require.Panics(t, func() {
		h.Free(ptr)
	})
}

func TestAlignedAllocIsAligned(t *testing.T) {
	h := New(8192, nil)
	ptr, err := h.AllocAligned(64, 64)
	require.NoError(t, err)
	require.Equal(t, uint32(0), uint32(ptr)%64)

	h.FreeAligned(ptr)
}

func TestAllocOutOfMemory(t *testing.T) {
	h := New(64, nil)
	_, err := h.Alloc(1000)
	require.Error(t, err)
}
