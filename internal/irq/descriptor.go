package irq

import (
	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kerr"
)

// HandlerFunc is the high-level handler a driver registers for a line.
type HandlerFunc func(line int, data interface{})

// Stats are the per-line counters spec §4.F requires.
type Stats struct {
	Total       uint64
	Spurious    uint64
	Unhandled   uint64
	Retriggered uint64
	Missed      uint64
	Pending     uint64
}

// Descriptor is the per-line state record (spec §3 "IRQ descriptor").
type Descriptor struct {
	line int

	disabled   bool
	depth      int
	inProgress bool

	chip      Chip
	chipData  interface{}
	flow      FlowHandler
	handler   HandlerFunc
	handlerData interface{}

	shared bool
	name   string
	affinity uint32

	Stats Stats
}

func newDescriptor(line int) *Descriptor {
	return &Descriptor{line: line, depth: 0, flow: SimpleFlow{}}
}

// Line returns the line number this descriptor owns.
func (d *Descriptor) Line() int { return d.line }

// Depth reports the nested-disable depth — 0 means the line is live, per
// the invariant `status & DISABLED iff depth > 0`.
func (d *Descriptor) Depth() int { return d.depth }

// Disabled reports whether the line is currently masked off by depth.
func (d *Descriptor) Disabled() bool { return d.depth > 0 }

func (d *Descriptor) runHandler() {
	if d.handler == nil {
		d.Stats.Unhandled++
		return
	}
	d.handler(d.line, d.handlerData)
}

// SetChip wires the controller-level operations for this line.
func (d *Descriptor) SetChip(c Chip) { d.chip = c }

// SetChipData attaches driver-private data alongside the chip.
func (d *Descriptor) SetChipData(v interface{}) { d.chipData = v }

// SetHandler wires the high-level handler.
func (d *Descriptor) SetHandler(h HandlerFunc) { d.handler = h }

// SetHandlerData attaches driver-private data alongside the handler.
func (d *Descriptor) SetHandlerData(v interface{}) { d.handlerData = v }

// SetFlowHandler selects the edge/level/simple/percpu policy for this line.
func (d *Descriptor) SetFlowHandler(f FlowHandler) { d.flow = f }

// requestIRQ installs handler and, if the line is currently disabled
// (depth>0), resets depth to 0 and unmasks it; a live line (depth==0) is
// left as it is. Busy if a handler already exists and flags don't request
// sharing.
func (d *Descriptor) requestIRQ(handler HandlerFunc, data interface{}, shared bool, name string) error {
	if d.handler != nil && !(d.shared && shared) {
		return errors.WithMessagef(kerr.ErrBusy, "irq %d: line already has a handler (%s)", d.line, d.name)
	}
	d.handler = handler
	d.handlerData = data
	d.shared = shared
	d.name = name
	if d.depth > 0 {
		d.depth = 0
		d.disabled = false
		if d.chip != nil {
			d.chip.Unmask(d.line)
		}
	}
	return nil
}

func (d *Descriptor) freeIRQ() {
	d.handler = nil
	d.handlerData = nil
	d.name = ""
	d.disableLocked()
}

// enableLocked decrements the disable depth, unmasking on the 1->0 edge.
// Enabling an already-enabled (never-disabled) line is a no-op.
func (d *Descriptor) enableLocked() {
	if d.depth == 0 {
		return
	}
	d.depth--
	if d.depth == 0 {
		d.disabled = false
		if d.chip != nil {
			d.chip.Unmask(d.line)
		}
	}
}

// disableLocked increments the disable depth, masking on the 0->1 edge.
func (d *Descriptor) disableLocked() {
	d.depth++
	if d.depth == 1 {
		d.disabled = true
		if d.chip != nil {
			d.chip.Mask(d.line)
		}
	}
}
