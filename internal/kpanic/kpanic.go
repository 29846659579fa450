// Package kpanic implements the kernel's one unrecoverable path: a detected
// corruption (heap checksum, slab magic, double free) or an unhandled CPU
// fault. Spec §7 says these are "always fatal: dump state, halt" — dump is
// modeled as a diagnostic report, halt as a Go panic, since there is no real
// CPU to stop.
package kpanic

import (
	"fmt"
	"runtime"
	"strings"
)

// Reason names the category of fatal condition, used by tests asserting on
// which invariant failed without string-matching a full message.
type Reason string

const (
	ReasonHeapChecksum   Reason = "heap checksum mismatch"
	ReasonHeapMagic      Reason = "heap block magic mismatch"
	ReasonDoubleFree     Reason = "double free"
	ReasonSlabMagic      Reason = "slab magic mismatch"
	ReasonPagingReenable Reason = "paging already enabled"
	ReasonUnhandledFault Reason = "unhandled CPU fault"
)

// Diagnostics is the state dumped alongside a fatal reason. Callers fill in
// whatever subsystem context they have; Report prints the process and
// memory fields even when zero, and omits only an empty ExtraContext.
type Diagnostics struct {
	CurrentPID   int
	ProcessName  string
	HeapUsed     uint64
	HeapPeak     uint64
	FramesUsed   uint64
	FramesTotal  uint64
	ExtraContext string
}

// Reporter receives the formatted panic report before Report halts via a Go
// panic. Kernels normally wire this to klog.Buffer.Printk at Emergency
// level; tests can substitute a capturing stub.
type Reporter interface {
	Printk(format string, args ...interface{})
}

// Report logs up to 8 stack frames plus the supplied diagnostics, then halts
// (panics) with reason as the panic value. It never returns.
func Report(log Reporter, reason Reason, d Diagnostics) {
	if log != nil {
		log.Printk("<0>kernel panic: %s", string(reason))
		log.Printk("<0>process: pid=%d name=%s", d.CurrentPID, d.ProcessName)
		log.Printk("<0>memory: heap_used=%d heap_peak=%d frames=%d/%d",
			d.HeapUsed, d.HeapPeak, d.FramesUsed, d.FramesTotal)
		if d.ExtraContext != "" {
			log.Printk("<0>context: %s", d.ExtraContext)
		}
		for i, frame := range stackWalk(8) {
			log.Printk("<0>  #%d %s", i, frame)
		}
	}
	panic(fmt.Sprintf("kernel panic: %s", reason))
}

func stackWalk(max int) []string {
	pc := make([]uintptr, max)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	var out []string
	for {
		f, more := frames.Next()
		out = append(out, trimFrame(f))
		if !more || len(out) >= max {
			break
		}
	}
	return out
}

func trimFrame(f runtime.Frame) string {
	fn := f.Function
	if idx := strings.LastIndex(fn, "/"); idx >= 0 {
		fn = fn[idx+1:]
	}
	return fmt.Sprintf("%s (%s:%d)", fn, f.File, f.Line)
}
