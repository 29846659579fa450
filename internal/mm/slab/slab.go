// Package slab implements the object cache ("slab") allocator (spec §4.D):
// per-type pools of fixed-size objects carved out of whole pages, with
// empty/partial/full slab lists, color rotation, and constructor/destructor
// hooks run at slab granularity rather than per allocation.
//
// The original threads a free list through the objects' own storage and
// recovers a slab from an object pointer by masking off the page-size bits.
// Go has no safe equivalent of that mask-and-cast, so allocation here
// returns a typed Handle (slab + index) instead of a bare pointer — the
// same "pointer graph → typed handle" reformulation spec §9 calls for.
package slab

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/kpanic"
)

const slabMagic uint32 = 0x5AB51AB5

// PageSource supplies whole, zeroed pages to back new slabs.
type PageSource interface {
	AllocPages(n int) ([]byte, error)
	FreePages([]byte)
}

// Logger is the subset of klog.Buffer the cache needs for corruption
// reports.
type Logger interface {
	Printk(format string, args ...interface{})
}

// Ctor/Dtor run once per object at slab creation/destruction time — spec
// §4.D: "invoked once per object when the slab is created ... cache_free
// does not destruct".
type Ctor func(obj []byte)
type Dtor func(obj []byte)

// Options configures a Cache at creation.
type Options struct {
	ObjectSize int
	Alignment  int // 0 defaults to 8
	HWCacheAlign bool
	Poison       bool
	GFPOrder     int // pages per slab; 0 defaults to 1
	Ctor         Ctor
	Dtor         Dtor
}

// Cache is a named pool of same-sized objects.
type Cache struct {
	mu   sync.Mutex
	name string
	opt  Options
	pages PageSource
	log   Logger

	objSize     int
	numPerSlab  int
	colorStep   int
	colorRange  int
	colorCursor int

	empty, partial, full []*Slab

	allocated, freed, active, peak, errors uint64
}

// Slab is one contiguous run of gfporder pages dedicated to one cache.
type Slab struct {
	cache  *Cache
	magic  uint32
	mem    []byte
	color  int
	num    int
	inuse  int
	free   []int // stack of free object indices
}

// New creates a cache. objectSize and alignment must be positive; alignment
// need not be a power of two (it models a cache-line-ish stride, not a
// pointer mask).
func New(name string, opt Options, pages PageSource, log Logger) (*Cache, error) {
	if opt.ObjectSize <= 0 {
		return nil, errors.WithMessage(kerr.ErrInvalidArgument, "slab: object size must be positive")
	}
	if opt.Alignment <= 0 {
		opt.Alignment = 8
	}
	if opt.GFPOrder <= 0 {
		opt.GFPOrder = 1
	}

	c := &Cache{name: name, opt: opt, pages: pages, log: log, objSize: opt.ObjectSize}

	pageBytes := opt.GFPOrder * pageSizeConst
	c.numPerSlab = pageBytes / c.objSize
	if c.numPerSlab <= 0 {
		return nil, errors.WithMessagef(kerr.ErrInvalidArgument, "slab: object size %d too large for %d-page slab", opt.ObjectSize, opt.GFPOrder)
	}

	if opt.HWCacheAlign {
		c.colorStep = opt.Alignment
		slack := pageBytes - c.numPerSlab*c.objSize
		if c.colorStep > 0 {
			c.colorRange = slack / c.colorStep
		}
	}

	return c, nil
}

const pageSizeConst = 4096

// Name reports the cache's name.
func (c *Cache) Name() string { return c.name }

// Stats returns the cache's allocation counters (spec §3 "Object cache").
func (c *Cache) Stats() (allocated, freed, active, peak, errs uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated, c.freed, c.active, c.peak, c.errors
}

// Handle identifies one object returned by Alloc.
type Handle struct {
	slab  *Slab
	index int
}

// nextColor rotates through colorRange+1 offsets, cycling back to 0 once it
// runs out of per-slab slack (pageBytes - numPerSlab*objSize) to place
// colors in. How many distinct colors that is depends entirely on how
// evenly objSize divides the backing pages for a given cache; it is not a
// fixed count.
func (c *Cache) nextColor() int {
	if c.colorRange <= 0 {
		return 0
	}
	color := (c.colorCursor % (c.colorRange + 1)) * c.colorStep
	c.colorCursor++
	return color
}

func (c *Cache) growSlab() (*Slab, error) {
	pageBytes := c.opt.GFPOrder * pageSizeConst
	mem, err := c.pages.AllocPages(c.opt.GFPOrder)
	if err != nil {
		c.errors++
		return nil, err
	}
	if len(mem) < pageBytes {
		c.errors++
		return nil, errors.WithMessage(kerr.ErrOutOfMemory, "slab: short page allocation")
	}

	s := &Slab{cache: c, magic: slabMagic, mem: mem, color: c.nextColor(), num: c.numPerSlab}
	s.free = make([]int, c.numPerSlab)
	for i := 0; i < c.numPerSlab; i++ {
		s.free[i] = i
		obj := s.object(i)
		if c.opt.Poison {
			poison(obj)
		}
		if c.opt.Ctor != nil {
			c.opt.Ctor(obj)
		}
	}
	return s, nil
}

func (s *Slab) object(index int) []byte {
	start := s.color + index*s.cache.objSize
	return s.mem[start : start+s.cache.objSize]
}

func poison(obj []byte) {
	for i := range obj {
		obj[i] = 0xAA
	}
}

// Alloc returns one object, preferring a partial slab, then an empty slab,
// then growing a fresh one. Returns kerr.ErrOutOfMemory (and bumps the
// error counter) if growth fails.
func (c *Cache) Alloc() (Handle, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s *Slab
	switch {
	case len(c.partial) > 0:
		s = c.partial[len(c.partial)-1]
	case len(c.empty) > 0:
		s = c.empty[len(c.empty)-1]
		c.empty = c.empty[:len(c.empty)-1]
	default:
		var err error
		s, err = c.growSlab()
		if err != nil {
			return Handle{}, nil, err
		}
	}

	idx := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	s.inuse++

	obj := s.object(idx)
	if c.opt.Poison {
		for i := range obj {
			obj[i] = 0
		}
	}

	c.migrate(s)
	c.allocated++
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	return Handle{slab: s, index: idx}, obj, nil
}

// migrate moves s between the partial/full lists based on its fill level.
// It assumes s is not currently in the empty list (callers pop it out
// first).
func (c *Cache) migrate(s *Slab) {
	removeFromAll(c, s)
	switch {
	case s.inuse == 0:
		c.empty = append(c.empty, s)
	case s.inuse == s.num:
		c.full = append(c.full, s)
	default:
		c.partial = append(c.partial, s)
	}
}

func removeFromAll(c *Cache, s *Slab) {
	c.partial = removeSlab(c.partial, s)
	c.full = removeSlab(c.full, s)
	c.empty = removeSlab(c.empty, s)
}

func removeSlab(list []*Slab, s *Slab) []*Slab {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Free returns an object to its slab's free list, validating the slab's
// magic number first. A corrupted slab magic is Corruption per spec §7.
func (c *Cache) Free(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := h.slab
	if s.magic != slabMagic {
		kpanic.Report(c.log, kpanic.ReasonSlabMagic, kpanic.Diagnostics{
			ExtraContext: "cache " + c.name + ": slab magic mismatch on free",
		})
		return
	}

	if c.opt.Poison {
		poison(s.object(h.index))
	}
	s.free = append(s.free, h.index)
	s.inuse--
	c.migrate(s)

	c.freed++
	c.active--
}

// Destroy runs dtor over every object in every slab (regardless of
// in-use state — spec §4.D only runs destructors at slab destruction) and
// releases the backing pages.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := append(append(append([]*Slab{}, c.empty...), c.partial...), c.full...)
	for _, s := range all {
		if c.opt.Dtor != nil {
			for i := 0; i < s.num; i++ {
				c.opt.Dtor(s.object(i))
			}
		}
		c.pages.FreePages(s.mem)
	}
	c.empty, c.partial, c.full = nil, nil, nil
}
