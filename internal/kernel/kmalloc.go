package kernel

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kconst"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/mm/heap"
	"github.com/solixos/kernel-core/internal/mm/slab"
)

func ptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return reflect.ValueOf(b).Pointer()
}

// KmallocSlab is the generic-size-class allocator (spec §4.D): one object
// cache per power-of-two size class in kconst.KmallocSizeClasses, built at
// boot, serving any request up to the largest class; anything bigger falls
// back to the region heap.
type KmallocSlab struct {
	classes []int
	caches  map[int]*slab.Cache
	heap    *heap.Heap

	// owners tracks which cache (if any) produced a given heap handle's
	// pointer so Free can route back to the right cache without the
	// caller having to remember which path served it.
	owners map[uintptr]ownerEntry
}

type ownerEntry struct {
	cache *slab.Cache
	h     slab.Handle
	fromHeap bool
	heapH    heap.Handle
}

// NewKmallocSlab builds one cache per size class, all backed by pages.
func NewKmallocSlab(pages slab.PageSource, h *heap.Heap, log slab.Logger) (*KmallocSlab, error) {
	classes := append([]int{}, kconst.KmallocSizeClasses[:]...)
	sort.Ints(classes)

	k := &KmallocSlab{classes: classes, caches: make(map[int]*slab.Cache), heap: h, owners: make(map[uintptr]ownerEntry)}
	for _, size := range classes {
		order := (size + kconst.PageSize - 1) / kconst.PageSize
		c, err := slab.New(kmallocCacheName(size), slab.Options{ObjectSize: size, Alignment: 8, GFPOrder: order}, pages, log)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel: creating kmalloc-%d cache", size)
		}
		k.caches[size] = c
	}
	return k, nil
}

func kmallocCacheName(size int) string {
	return "kmalloc-" + itoa(size)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// classFor returns the smallest size class able to hold size, or 0 if size
// exceeds every class.
func (k *KmallocSlab) classFor(size int) int {
	for _, c := range k.classes {
		if size <= c {
			return c
		}
	}
	return 0
}

// Alloc serves size bytes from the matching size-class cache, falling back
// to the region heap for oversized requests (spec §4.D).
func (k *KmallocSlab) Alloc(size int) ([]byte, error) {
	class := k.classFor(size)
	if class == 0 {
		hh, err := k.heap.Alloc(uint32(size))
		if err != nil {
			return nil, err
		}
		buf := k.heap.Read(hh, uint32(size))
		k.owners[ptrOf(buf)] = ownerEntry{fromHeap: true, heapH: hh}
		return buf, nil
	}

	c := k.caches[class]
	h, obj, err := c.Alloc()
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel: kmalloc(%d)", size)
	}
	k.owners[ptrOf(obj)] = ownerEntry{cache: c, h: h}
	return obj[:size], nil
}

// Free releases a buffer previously returned by Alloc, routing to the
// cache or the heap depending on which path originally served it.
func (k *KmallocSlab) Free(buf []byte) error {
	key := ptrOf(buf)
	o, ok := k.owners[key]
	if !ok {
		return errors.WithMessage(kerr.ErrInvalidArgument, "kernel: kfree on unknown pointer")
	}
	delete(k.owners, key)
	if o.fromHeap {
		k.heap.Free(o.heapH)
		return nil
	}
	o.cache.Free(o.h)
	return nil
}
