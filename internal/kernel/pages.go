package kernel

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kconst"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/mm/frame"
	"github.com/solixos/kernel-core/internal/mm/heap"
	"github.com/solixos/kernel-core/internal/mm/paging"
)

// FramePageSource implements slab.PageSource by sourcing whole pages from
// the frame allocator and installing them through the paging mapper, per
// spec §4.D's data-flow note: "both ultimately source whole pages from A
// via B's virtual mappings." Go gives no safe way to hand back a []byte
// aliased to an arbitrary physical address, so the content backing each
// mapped range is an ordinary Go allocation; the frame/virtual-address
// bookkeeping this type performs around that allocation is what actually
// exercises components A and B (see DESIGN.md).
type FramePageSource struct {
	mu       sync.Mutex
	frames   *frame.Allocator
	as       *paging.AddressSpace
	nextVirt uintptr
	allocs   map[uintptr]pageAlloc
}

type pageAlloc struct {
	virtBase uintptr
	frames   []frame.Frame
}

// NewFramePageSource creates a page source that maps new ranges starting
// at virtBase (expected to sit past any identity-mapped boot window).
func NewFramePageSource(frames *frame.Allocator, as *paging.AddressSpace, virtBase uintptr) *FramePageSource {
	return &FramePageSource{frames: frames, as: as, nextVirt: virtBase, allocs: make(map[uintptr]pageAlloc)}
}

// AllocPages allocates n frames, maps them contiguously starting at the
// source's virtual cursor, and returns an n*PageSize buffer.
func (s *FramePageSource) AllocPages(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fs := make([]frame.Frame, 0, n)
	for i := 0; i < n; i++ {
		f, err := s.frames.AllocFrame()
		if err != nil {
			for _, done := range fs {
				s.frames.FreeFrame(done)
			}
			return nil, err
		}
		fs = append(fs, f)
	}

	virt := s.nextVirt
	for i, f := range fs {
		flags := paging.Flags{Present: true, Writable: true}
		if err := s.as.Map(virt+uintptr(i)*kconst.PageSize, f, flags); err != nil {
			for j := 0; j < i; j++ {
				s.as.Unmap(virt + uintptr(j)*kconst.PageSize)
			}
			for _, done := range fs {
				s.frames.FreeFrame(done)
			}
			return nil, err
		}
	}
	s.nextVirt = virt + uintptr(n)*kconst.PageSize

	mem := make([]byte, n*kconst.PageSize)
	s.allocs[reflect.ValueOf(mem).Pointer()] = pageAlloc{virtBase: virt, frames: fs}
	return mem, nil
}

// FreePages unmaps and releases the frames backing mem.
func (s *FramePageSource) FreePages(mem []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reflect.ValueOf(mem).Pointer()
	a, ok := s.allocs[key]
	if !ok {
		return
	}
	delete(s.allocs, key)
	for i, f := range a.frames {
		s.as.Unmap(a.virtBase + uintptr(i)*kconst.PageSize)
		s.frames.FreeFrame(f)
	}
}

// HeapTableAllocator implements paging.TableAllocator by charging a
// page-aligned reservation against the region heap for each new page
// table, per spec §4.B: "a new page table is allocated (page-aligned, via
// the region heap), zeroed". The Table value itself is an ordinary Go
// struct (zeroed by construction); the heap reservation is what makes the
// allocation observable in heap usage stats.
type HeapTableAllocator struct {
	heap *heap.Heap
}

// NewHeapTableAllocator wraps h.
func NewHeapTableAllocator(h *heap.Heap) *HeapTableAllocator {
	return &HeapTableAllocator{heap: h}
}

// AllocTable reserves one page from the heap and returns a fresh table.
func (a *HeapTableAllocator) AllocTable() (*paging.Table, error) {
	if _, err := a.heap.AllocAligned(kconst.PageSize, kconst.PageSize); err != nil {
		return nil, errors.WithMessage(kerr.ErrOutOfMemory, "kernel: allocating page table")
	}
	return &paging.Table{}, nil
}
