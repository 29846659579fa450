// Package heap implements the kernel's byte-granular region allocator (spec
// §4.C): best-fit over a doubly-linked, address-ordered, checksummed block
// list, eager coalescing, and aligned-allocation support.
//
// The original C formulation threads the list through payload-adjacent
// pointers and casts a payload address back to its header by pointer
// arithmetic. Here the heap owns one contiguous arena ([]byte) and every
// "pointer" is a Handle — a bounds-checked byte offset into that arena, per
// the reification called out in spec §9. Header fields are still
// serialized into the arena bytes (not held in a parallel Go struct slice)
// so that corruption of a single header byte is observable and detectable
// exactly as spec §8's testable properties require.
package heap

import (
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/kpanic"
)

const (
	magicFree uint32 = 0xF9EEF9EE
	magicUsed uint32 = 0xABBAABBA

	// header layout: tag(4) size(4) prev(4) next(4) checksum(4)
	headerLen = 20
	noLink    = -1

	wordSize    = 4
	minAlloc    = 16
	splitMargin = headerLen + minAlloc
)

// Handle is a bounds-checked offset into the heap's arena identifying a
// block's payload — the Go stand-in for a raw `void*` returned by kmalloc.
type Handle uint32

// Logger is the subset of klog.Buffer the heap needs to report corruption.
type Logger interface {
	Printk(format string, args ...interface{})
}

// Heap is one contiguous region, sized at construction, living "immediately
// after the kernel image" in the original; here it is just the backing
// arena.
type Heap struct {
	mu   sync.Mutex
	data []byte
	log  Logger

	used uint64
	peak uint64
}

// New creates a heap over a freshly allocated arena of size bytes, with one
// free block spanning it.
func New(size uint32, log Logger) *Heap {
	h := &Heap{data: make([]byte, size), log: log}
	h.writeHeader(0, magicFree, size-headerLen, noLink, noLink)
	return h
}

// Stats returns current and peak bytes in use (payload bytes, not counting
// headers), for the meminfo syscall.
func (h *Heap) Stats() (used, peak uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used, h.peak
}

// --- header access -----------------------------------------------------

func (h *Heap) readHeader(off uint32) (tag, size uint32, prev, next int32, checksum uint32) {
	b := h.data[off : off+headerLen]
	tag = binary.LittleEndian.Uint32(b[0:4])
	size = binary.LittleEndian.Uint32(b[4:8])
	prev = int32(binary.LittleEndian.Uint32(b[8:12]))
	next = int32(binary.LittleEndian.Uint32(b[12:16]))
	checksum = binary.LittleEndian.Uint32(b[16:20])
	return
}

func headerChecksum(tag, size uint32, prev, next int32) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], tag)
	binary.LittleEndian.PutUint32(buf[4:8], size)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(prev))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(next))
	return crc32.ChecksumIEEE(buf[:])
}

func (h *Heap) writeHeader(off uint32, tag, size uint32, prev, next int32) {
	b := h.data[off : off+headerLen]
	binary.LittleEndian.PutUint32(b[0:4], tag)
	binary.LittleEndian.PutUint32(b[4:8], size)
	binary.LittleEndian.PutUint32(b[8:12], uint32(prev))
	binary.LittleEndian.PutUint32(b[12:16], uint32(next))
	binary.LittleEndian.PutUint32(b[16:20], headerChecksum(tag, size, prev, next))
}

// verify validates a header's checksum, halting via kpanic on mismatch.
func (h *Heap) verify(off uint32) (tag, size uint32, prev, next int32) {
	tag, size, prev, next, checksum := h.readHeader(off)
	if headerChecksum(tag, size, prev, next) != checksum {
		kpanic.Report(h.log, kpanic.ReasonHeapChecksum, kpanic.Diagnostics{
			HeapUsed: h.used, HeapPeak: h.peak,
			ExtraContext: "block header failed checksum validation",
		})
	}
	return
}

// --- allocation ----------------------------------------------------------

func roundUp(size uint32) uint32 {
	if size < minAlloc {
		size = minAlloc
	}
	rem := size % wordSize
	if rem != 0 {
		size += wordSize - rem
	}
	return size
}

// Alloc allocates size bytes, best-fit: the smallest free block that is
// at least as large as the (rounded) request, with an exact match stopping
// the scan early.
func (h *Heap) Alloc(size uint32) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	want := roundUp(size)

	var bestOff uint32
	var bestSize uint32
	found := false

	off := uint32(0)
	for {
		tag, blkSize, _, next, _ := h.verify(off)
		if tag == magicFree && blkSize >= want {
			if !found || blkSize < bestSize {
				bestOff, bestSize = off, blkSize
				found = true
				if blkSize == want {
					break
				}
			}
		}
		if next == noLink {
			break
		}
		off = uint32(next)
	}

	if !found {
		return 0, kerr.ErrOutOfMemory
	}

	_, _, prev, next := h.verify(bestOff) // re-read with current links

	var used uint32
	if bestSize-want >= splitMargin {
		newOff := bestOff + headerLen + want
		newSize := bestSize - want - headerLen
		h.writeHeader(newOff, magicFree, newSize, int32(bestOff), next)
		if next != noLink {
			h.relink(uint32(next), int32(newOff), -2)
		}
		h.writeHeader(bestOff, magicUsed, want, prev, int32(newOff))
		used = want
	} else {
		h.writeHeader(bestOff, magicUsed, bestSize, prev, next)
		used = bestSize
	}

	// Account for whatever size was actually stamped into the block's
	// header above, since that is what Free will subtract back out —
	// want in the split case, the whole (slightly larger) block otherwise.
	h.used += uint64(used)
	if h.used > h.peak {
		h.peak = h.used
	}
	return Handle(bestOff + headerLen), nil
}

// relink rewrites only the prev and/or next pointer of the header at off,
// leaving tag/size untouched; pass -2 for "leave alone" on either field (a
// private sentinel distinct from noLink).
func (h *Heap) relink(off uint32, newPrev, newNext int32) {
	tag, size, prev, next, _ := h.readHeader(off)
	if newPrev != -2 {
		prev = newPrev
	}
	if newNext != -2 {
		next = newNext
	}
	h.writeHeader(off, tag, size, prev, next)
}

// Free releases a block previously returned by Alloc. Double-free and
// header corruption are both Corruption per spec §7 and halt the kernel.
func (h *Heap) Free(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.freeAt(uint32(handle) - headerLen)
}

func (h *Heap) freeAt(off uint32) {
	tag, size, prev, next, _ := h.verify(off)
	if tag == magicFree {
		kpanic.Report(h.log, kpanic.ReasonDoubleFree, kpanic.Diagnostics{
			HeapUsed: h.used, HeapPeak: h.peak,
			ExtraContext: "kfree called twice on the same block",
		})
		return
	}

	h.used -= uint64(size)
	h.writeHeader(off, magicFree, size, prev, next)

	// Coalesce with the previous neighbor if free.
	if prev != noLink {
		pTag, pSize, pPrev, _, _ := h.verify(uint32(prev))
		if pTag == magicFree {
			mergedSize := pSize + headerLen + size
			h.writeHeader(uint32(prev), magicFree, mergedSize, pPrev, next)
			if next != noLink {
				h.relink(uint32(next), int32(prev), -2)
			}
			off = uint32(prev)
			_, size, prev, next, _ = h.verify(off)
		}
	}

	// Coalesce with the next neighbor if free.
	if next != noLink {
		nTag, nSize, _, nNext, _ := h.verify(uint32(next))
		if nTag == magicFree {
			mergedSize := size + headerLen + nSize
			h.writeHeader(off, magicFree, mergedSize, prev, nNext)
			if nNext != noLink {
				h.relink(uint32(nNext), int32(off), -2)
			}
		}
	}
}

// --- aligned allocation ---------------------------------------------------

// alignedSubHeader sits just below the address returned by AllocAligned,
// recording the real handle and alignment so FreeAligned can recover it.
const alignedSubHeaderLen = 8

// AllocAligned returns a handle to a size-byte region whose payload address
// is a multiple of align (a power of two).
func (h *Heap) AllocAligned(size, align uint32) (Handle, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.WithMessagef(kerr.ErrInvalidArgument, "alignment %d is not a power of two", align)
	}

	raw, err := h.Alloc(size + align + alignedSubHeaderLen)
	if err != nil {
		return 0, err
	}

	rawAddr := uint32(raw)
	aligned := (rawAddr + alignedSubHeaderLen + align - 1) &^ (align - 1)

	h.mu.Lock()
	binary.LittleEndian.PutUint32(h.data[aligned-8:aligned-4], rawAddr)
	binary.LittleEndian.PutUint32(h.data[aligned-4:aligned], align)
	h.mu.Unlock()

	return Handle(aligned), nil
}

// FreeAligned frees a handle previously returned by AllocAligned.
func (h *Heap) FreeAligned(handle Handle) {
	h.mu.Lock()
	aligned := uint32(handle)
	rawAddr := binary.LittleEndian.Uint32(h.data[aligned-8 : aligned-4])
	h.mu.Unlock()

	h.Free(Handle(rawAddr))
}

// Read exposes the payload bytes for handle, length len — callers (such as
// kernel.KmallocSlab's oversized-request path) use this instead of unsafe
// pointers to get at the underlying storage.
func (h *Heap) Read(handle Handle, length uint32) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	off := uint32(handle)
	return h.data[off : off+length]
}
