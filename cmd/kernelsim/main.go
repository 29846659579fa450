// Command kernelsim is the host-side harness for the kernel core: there is
// no real bootloader or CPU to drive spec.md's interrupt/timer/syscall
// surface in this repo, so this CLI stands in for it, the way the teacher's
// own kernel.go drives mazarin's boot sequence from Go instead of assembly.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var log = logrus.New()

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &simConfig{}

	root := &cobra.Command{
		Use:   "kernelsim",
		Short: "Drive the kernel core's boot, scheduler, and syscall paths from the host",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	var flags *pflag.FlagSet = root.PersistentFlags()
	flags.Uint32Var(&cfg.totalFrames, "total-frames", 8192, "physical frames managed by the frame allocator")
	flags.Uint32Var(&cfg.heapSize, "heap-size", 16<<20, "region heap arena size in bytes")
	flags.IntVar(&cfg.timerHz, "timer-hz", 100, "simulated timer frequency in Hz")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newBootCmd(cfg),
		newMeminfoCmd(cfg),
		newPsCmd(cfg),
		newIRQStatsCmd(cfg),
	)
	return root
}

type simConfig struct {
	totalFrames uint32
	heapSize    uint32
	timerHz     int
	verbose     bool
}
