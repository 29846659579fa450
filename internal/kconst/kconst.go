// Package kconst holds the stable numeric constants external callers of the
// kernel core depend on (spec §6). These are compile-time values, not
// runtime tunables — see kernel.BootConfig for the latter.
package kconst

const (
	PageSize         = 4096
	KernelStackSize  = 8192
	MaxProcesses     = 64
	MaxOpenFiles     = 16
	TimerFrequencyHz = 100
	NRIrqs           = 256
	SyscallVector    = 0x80
	LogBufferSize    = 131072
	IrqBase          = 32 // first vector after PIC remap
)

// KmallocSizeClasses are the generic object-cache sizes backing kmalloc_slab.
var KmallocSizeClasses = [...]int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384}
