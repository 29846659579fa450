package irq

// Chip is the low-level controller interface a driver implements (spec §6
// "Driver ↔ IRQ model"): {startup, shutdown, enable, disable, ack, mask,
// unmask, eoi, set_type, set_affinity, retrigger, set_wake}. Any operation
// may be a no-op.
type Chip interface {
	Name() string
	Startup(line int) error
	Shutdown(line int)
	Enable(line int)
	Disable(line int)
	Ack(line int)
	Mask(line int)
	Unmask(line int)
	EOI(line int)
	SetType(line int, flow string) error
	SetAffinity(line int, mask uint32) error
	Retrigger(line int) bool
	SetWake(line int, on bool) error
}

// NopChip is a Chip whose every operation is a no-op; concrete chips embed
// it and override only what they implement, per spec §6's "any operation
// may be null" contract.
type NopChip struct {
	ChipName string
}

func (n NopChip) Name() string                                { return n.ChipName }
func (NopChip) Startup(int) error                             { return nil }
func (NopChip) Shutdown(int)                                  {}
func (NopChip) Enable(int)                                     {}
func (NopChip) Disable(int)                                    {}
func (NopChip) Ack(int)                                        {}
func (NopChip) Mask(int)                                       {}
func (NopChip) Unmask(int)                                     {}
func (NopChip) EOI(int)                                        {}
func (NopChip) SetType(int, string) error                      { return nil }
func (NopChip) SetAffinity(int, uint32) error                  { return nil }
func (NopChip) Retrigger(int) bool                             { return false }
func (NopChip) SetWake(int, bool) error                        { return nil }
