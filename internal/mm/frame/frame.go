// Package frame implements the physical page-frame allocator (spec §4.A): a
// dense one-bit-per-frame bitmap with a next-fit cursor.
package frame

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kerr"
)

// Frame is a physical frame index (physical address >> 12).
type Frame uint32

// Allocator owns a bitmap over the full physical address space the kernel
// knows about.
type Allocator struct {
	mu         sync.Mutex
	bitmap     []uint64 // one bit per frame
	total      uint32
	used       uint32
	cursor     uint32 // next-fit hint, not authoritative
}

// New creates an allocator covering totalFrames physical frames, all
// initially free.
func New(totalFrames uint32) *Allocator {
	words := (totalFrames + 63) / 64
	return &Allocator{
		bitmap: make([]uint64, words),
		total:  totalFrames,
	}
}

// TotalFrames reports the size of the managed physical range.
func (a *Allocator) TotalFrames() uint32 {
	return a.total
}

// UsedFrames reports the number of currently allocated frames. Invariant:
// this always equals popcount(bitmap).
func (a *Allocator) UsedFrames() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *Allocator) bitSet(i uint32) bool {
	return a.bitmap[i/64]&(1<<(i%64)) != 0
}

func (a *Allocator) setBit(i uint32) {
	a.bitmap[i/64] |= 1 << (i % 64)
}

func (a *Allocator) clearBit(i uint32) {
	a.bitmap[i/64] &^= 1 << (i % 64)
}

// AllocFrame hands out one free frame, scanning from the cursor (next-fit)
// and wrapping back to 0 on reaching the end. Returns kerr.ErrOutOfMemory if
// a full scan finds nothing free.
func (a *Allocator) AllocFrame() (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for scanned := uint32(0); scanned < a.total; scanned++ {
		idx := (a.cursor + scanned) % a.total
		if !a.bitSet(idx) {
			a.setBit(idx)
			a.used++
			a.cursor = (idx + 1) % a.total
			return Frame(idx), nil
		}
	}
	return 0, kerr.ErrOutOfMemory
}

// FreeFrame releases a previously allocated frame. Freeing an already-free
// or out-of-range frame is a contract violation; it is rejected with
// kerr.ErrInvalidArgument and leaves the bitmap and counter unchanged.
func (a *Allocator) FreeFrame(f Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeLocked(f)
}

func (a *Allocator) freeLocked(f Frame) error {
	if uint32(f) >= a.total {
		return errors.WithMessagef(kerr.ErrInvalidArgument, "frame %d out of range [0,%d)", f, a.total)
	}
	if !a.bitSet(uint32(f)) {
		return errors.WithMessagef(kerr.ErrInvalidArgument, "frame %d already free", f)
	}
	a.clearBit(uint32(f))
	a.used--
	return nil
}
