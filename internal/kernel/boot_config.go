package kernel

import "github.com/solixos/kernel-core/internal/klog"

// BootConfig carries the runtime tunables a real boot loader would read
// from the command line or a config block, kept out of package globals per
// spec §9's "reify as a value owned by an explicit kernel singleton"
// note: the compile-time constants in internal/kconst stay as-is, but
// anything the reference kernel treats as a boot-time parameter (heap
// size, usable physical memory, timer rate) is plumbed in here instead.
type BootConfig struct {
	// TotalFrames is the number of 4 KiB physical frames the frame
	// allocator manages.
	TotalFrames uint32
	// HeapSize is the size in bytes of the region heap's backing arena.
	HeapSize uint32
	// TimerFrequencyHz is the rate the timer driver is expected to call
	// Kernel.Tick (spec §6; reference value kconst.TimerFrequencyHz).
	TimerFrequencyHz int
	// LogThreshold is the console cutoff level (spec §4.I).
	LogThreshold klog.Level
	// EnableTimestamps turns on "[seconds.millis]" log prefixes.
	EnableTimestamps bool
}

// DefaultBootConfig returns the reference values from spec §6.
func DefaultBootConfig() BootConfig {
	return BootConfig{
		TotalFrames:      8192, // 32 MiB of managed physical memory
		HeapSize:         16 << 20,
		TimerFrequencyHz: 100,
		LogThreshold:     klog.Warning,
		EnableTimestamps: true,
	}
}
