package main

import (
	"github.com/pkg/errors"
	"github.com/solixos/kernel-core/internal/kernel"
	"github.com/solixos/kernel-core/internal/klog"
	"github.com/solixos/kernel-core/internal/platform"
)

// bootKernel builds and boots a kernel.Kernel from cfg, wiring the host's
// stdout console through internal/platform the way a real boot loader would
// wire a serial port. The kernel keeps its own tick-counted clock; no host
// clock is wired in.
func bootKernel(cfg *simConfig) (*kernel.Kernel, error) {
	bcfg := kernel.DefaultBootConfig()
	bcfg.TotalFrames = cfg.totalFrames
	bcfg.HeapSize = cfg.heapSize
	bcfg.TimerFrequencyHz = cfg.timerHz
	bcfg.LogThreshold = klog.Info

	k, err := kernel.New(bcfg)
	if err != nil {
		return nil, errors.WithMessage(err, "kernelsim: constructing kernel")
	}
	k.Log.RegisterConsole(platform.NewConsole(1))

	if _, err := k.Boot(); err != nil {
		return nil, errors.WithMessage(err, "kernelsim: booting kernel")
	}
	return k, nil
}
