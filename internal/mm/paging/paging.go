// Package paging implements the two-level x86 page directory/table mapper
// (spec §4.B): lazy table materialization, an identity-mapped boot window,
// and a TLB-invalidate hook run after every mutation.
package paging

import (
	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kerr"
	"github.com/solixos/kernel-core/internal/kpanic"
	"github.com/solixos/kernel-core/internal/mm/frame"
	"github.com/solixos/kernel-core/pkg/bitfield"
)

const (
	entriesPerTable = 1024
	pageBits        = 12 // PAGE_SIZE = 4096 = 1<<12
	dirIndexBits    = 10
)

// Flags are the three bits the mapper exposes to callers (spec §4.B).
type Flags struct {
	Present  bool
	Writable bool
	User     bool
}

// Entry is the decoded view of one page table leaf or directory slot.
type Entry struct {
	Present  bool
	Writable bool
	User     bool
	Accessed bool
	Dirty    bool
	Frame    frame.Frame
}

// entryBits is Entry's on-the-wire layout: the 32-bit word a real x86 PTE
// is, packed with `pkg/bitfield` the same way the teacher's
// src/bitfield/page_flags.go packs PageFlags — Table stores these words
// directly rather than a Go struct of bools sitting next to a frame number,
// so the packed representation is what actually crosses the Map/Lookup
// boundary instead of just living in a doc comment.
type entryBits struct {
	Present  bool   `bitfield:",1"`
	Writable bool   `bitfield:",1"`
	User     bool   `bitfield:",1"`
	Accessed bool   `bitfield:",1"`
	Dirty    bool   `bitfield:",1"`
	Reserved uint32 `bitfield:",7"`
	FrameNum uint32 `bitfield:",20"`
}

var entryConfig = &bitfield.Config{NumBits: 32}

func packEntry(e Entry) (uint32, error) {
	bits := entryBits{
		Present:  e.Present,
		Writable: e.Writable,
		User:     e.User,
		Accessed: e.Accessed,
		Dirty:    e.Dirty,
		FrameNum: uint32(e.Frame),
	}
	packed, err := bitfield.Pack(&bits, entryConfig)
	if err != nil {
		return 0, err
	}
	return uint32(packed), nil
}

func unpackEntry(word uint32) Entry {
	var bits entryBits
	// Unpack only fails on malformed tags or an unaddressable target, both
	// programmer errors in this package, not a runtime condition callers
	// need to react to.
	_ = bitfield.Unpack(uint64(word), &bits, entryConfig)
	return Entry{
		Present:  bits.Present,
		Writable: bits.Writable,
		User:     bits.User,
		Accessed: bits.Accessed,
		Dirty:    bits.Dirty,
		Frame:    frame.Frame(bits.FrameNum),
	}
}

// Table is a page table: 1024 leaf entries mapping one 4 MiB virtual
// region, each stored as its packed entryBits word.
type Table struct {
	Entries [entriesPerTable]uint32
}

// TableAllocator supplies zeroed, page-aligned storage for new page tables.
// The mapper sources these "via the region heap" per spec §4.B; in this Go
// model that is any allocator capable of handing back a fresh *Table, most
// naturally internal/kernel's HeapTableAllocator, which reserves each
// table's page from the region heap.
type TableAllocator interface {
	AllocTable() (*Table, error)
}

// TLB is the invalidation hook run after every mapping mutation. A real
// boot stub wires this to `invlpg`; tests and the simulation harness can
// use a counting stub.
type TLB interface {
	InvalidatePage(virt uintptr)
}

type noopTLB struct{}

func (noopTLB) InvalidatePage(uintptr) {}

// Logger is the minimal interface paging needs from klog for the
// EnablePaging corruption panic.
type Logger interface {
	Printk(format string, args ...interface{})
}

// AddressSpace is one page directory plus its materialized tables.
type AddressSpace struct {
	directory [entriesPerTable]*Table // nil until materialized
	dirFlags  [entriesPerTable]Flags
	alloc     TableAllocator
	tlb       TLB
	log       Logger
	enabled   bool
}

// NewAddressSpace creates an empty address space. tlb may be nil, in which
// case invalidation is a no-op (acceptable before paging is enabled).
func NewAddressSpace(alloc TableAllocator, tlb TLB, log Logger) *AddressSpace {
	if tlb == nil {
		tlb = noopTLB{}
	}
	return &AddressSpace{alloc: alloc, tlb: tlb, log: log}
}

func split(virt uintptr) (dirIdx, tblIdx int) {
	dirIdx = int((virt >> (pageBits + dirIndexBits)) & (entriesPerTable - 1))
	tblIdx = int((virt >> pageBits) & (entriesPerTable - 1))
	return
}

// Map installs virt -> phys with the given flags, lazily allocating the
// backing page table if the directory entry for virt is absent. On
// OutOfMemory the leaf entry is left untouched.
func (as *AddressSpace) Map(virt uintptr, phys frame.Frame, flags Flags) error {
	dirIdx, tblIdx := split(virt)

	table := as.directory[dirIdx]
	if table == nil {
		t, err := as.alloc.AllocTable()
		if err != nil {
			return errors.WithMessage(kerr.ErrOutOfMemory, "paging: allocating page table")
		}
		as.directory[dirIdx] = t
		as.dirFlags[dirIdx] = Flags{Present: true, Writable: true, User: false}
		table = t
	}

	word, err := packEntry(Entry{
		Present:  flags.Present,
		Writable: flags.Writable,
		User:     flags.User,
		Frame:    phys,
	})
	if err != nil {
		return errors.WithMessage(err, "paging: packing page table entry")
	}
	table.Entries[tblIdx] = word
	as.tlb.InvalidatePage(virt)
	return nil
}

// Unmap clears the leaf entry for virt, if any. Unmapping an address whose
// directory entry was never materialized is a no-op.
func (as *AddressSpace) Unmap(virt uintptr) error {
	dirIdx, tblIdx := split(virt)
	table := as.directory[dirIdx]
	if table == nil {
		return nil
	}
	table.Entries[tblIdx] = 0
	as.tlb.InvalidatePage(virt)
	return nil
}

// Lookup returns the leaf entry currently installed for virt and whether
// its directory/table chain exists at all.
func (as *AddressSpace) Lookup(virt uintptr) (Entry, bool) {
	dirIdx, tblIdx := split(virt)
	table := as.directory[dirIdx]
	if table == nil {
		return Entry{}, false
	}
	return unpackEntry(table.Entries[tblIdx]), true
}

// IdentityMapBootWindow maps the first windowBytes of physical memory to
// the same virtual addresses, writable=1, user=0 — the boot-time window
// spec §4.B requires before paging is enabled. frames supplies physical
// frame numbers for each page in order.
func (as *AddressSpace) IdentityMapBootWindow(windowBytes uint32, frames func(pageIndex uint32) frame.Frame) error {
	pages := windowBytes / (1 << pageBits)
	for i := uint32(0); i < pages; i++ {
		virt := uintptr(i) << pageBits
		if err := as.Map(virt, frames(i), Flags{Present: true, Writable: true, User: false}); err != nil {
			return err
		}
	}
	return nil
}

// EnablePaging marks this address space active. It is idempotent-checked:
// calling it a second time on an already-enabled space is Corruption per
// spec §4.B and §7, and halts via kpanic.
func (as *AddressSpace) EnablePaging() {
	if as.enabled {
		kpanic.Report(as.log, kpanic.ReasonPagingReenable, kpanic.Diagnostics{
			ExtraContext: "EnablePaging called twice on the same address space",
		})
		return
	}
	as.enabled = true
}

// Enabled reports whether EnablePaging has run.
func (as *AddressSpace) Enabled() bool {
	return as.enabled
}
