// Package kerr defines the error kinds shared across the kernel core (spec
// §7). Components wrap these sentinels with github.com/pkg/errors so callers
// can test with errors.Is while still getting a contextual message.
package kerr

import "github.com/pkg/errors"

var (
	// ErrOutOfMemory means an allocator could not satisfy a request. Never
	// fatal on its own.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidArgument means a bad line number, size, alignment, or a
	// required nil pointer. No state change occurs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBusy means the resource is already owned (non-shared IRQ in use).
	ErrBusy = errors.New("resource busy")

	// ErrNotFound means no such PID, line, or device.
	ErrNotFound = errors.New("not found")
)
