package irq

// FlowHandler is the policy bundle spec §4.F calls "flow control": the
// order mask/ack/eoi happen around a handler invocation.
type FlowHandler interface {
	Name() string
	Handle(d *Descriptor)
}

// EdgeFlow: ack immediately, unmask, run handler, EOI. Pulses that arrive
// while the handler runs are queued as Pending rather than re-entering it.
type EdgeFlow struct{}

func (EdgeFlow) Name() string { return "edge" }

func (EdgeFlow) Handle(d *Descriptor) {
	d.chip.Ack(d.line)
	d.chip.Unmask(d.line)
	d.runHandler()
	d.chip.EOI(d.line)
}

// LevelFlow: mask to prevent re-entry, ack, run handler, EOI, unmask.
type LevelFlow struct{}

func (LevelFlow) Name() string { return "level" }

func (LevelFlow) Handle(d *Descriptor) {
	d.chip.Mask(d.line)
	d.chip.Ack(d.line)
	d.runHandler()
	d.chip.EOI(d.line)
	d.chip.Unmask(d.line)
}

// SimpleFlow: run the handler and nothing else — for stubs that manage
// their own ack/EOI lifecycle.
type SimpleFlow struct{}

func (SimpleFlow) Name() string { return "simple" }

func (SimpleFlow) Handle(d *Descriptor) {
	d.runHandler()
}

// PerCPUFlow: run handler, then EOI; no mask/unmask around it.
type PerCPUFlow struct{}

func (PerCPUFlow) Name() string { return "percpu" }

func (PerCPUFlow) Handle(d *Descriptor) {
	d.runHandler()
	d.chip.EOI(d.line)
}
