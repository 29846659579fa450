// Package platform is the one place this module touches the host operating
// system rather than modeling the hardware spec.md describes: a monotonic
// clock and a raw console descriptor. cmd/kernelsim's simulation harness
// uses the console as a klog sink; it drives Kernel.Tick a fixed number of
// times and does not use the clock. Nothing under
// internal/mm, internal/irq, internal/sched, or internal/proc imports it.
package platform

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicClock samples CLOCK_MONOTONIC directly via unix.ClockGettime
// rather than time.Now(), the same raw-syscall style the pack's uffd and
// ublk runner files use for anything timing- or fd-related, so its
// readings are immune to wall-clock step changes (spec §1's "no other timing assumption beyond monotonicity").
type MonotonicClock struct {
	start unix.Timespec
}

// NewMonotonicClock captures the current monotonic time as the harness's
// epoch.
func NewMonotonicClock() (*MonotonicClock, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return nil, err
	}
	return &MonotonicClock{start: ts}, nil
}

// Elapsed returns the time since the clock was created.
func (c *MonotonicClock) Elapsed() (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, err
	}
	delta := ts.Nano() - c.start.Nano()
	return time.Duration(delta), nil
}

// TicksAt converts Elapsed into a tick count at the given frequency; a
// non-positive hz is treated as 1.
func (c *MonotonicClock) TicksAt(hz int) (uint64, error) {
	d, err := c.Elapsed()
	if err != nil {
		return 0, err
	}
	if hz <= 0 {
		hz = 1
	}
	return uint64(d.Seconds() * float64(hz)), nil
}
