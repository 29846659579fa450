package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// timerLine mirrors internal/kernel's unexported constant of the same name;
// it is not exported there because nothing outside boot wiring should ever
// need it, but the CLI reports on exactly that one line.
const timerLine = 0

func newIRQStatsCmd(cfg *simConfig) *cobra.Command {
	var ticks int

	cmd := &cobra.Command{
		Use:   "irq-stats",
		Short: "Boot the kernel, run N synthetic timer ticks, and print the timer line's IRQ stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := bootKernel(cfg)
			if err != nil {
				return err
			}
			for i := 0; i < ticks; i++ {
				k.Tick()
			}

			d, err := k.IRQ.Line(timerLine)
			if err != nil {
				return err
			}
			s := d.Stats
			fmt.Printf("line=%d total=%d unhandled=%d spurious=%d retriggered=%d missed=%d pending=%d\n",
				timerLine, s.Total, s.Unhandled, s.Spurious, s.Retriggered, s.Missed, s.Pending)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 10, "number of synthetic timer ticks to run")
	return cmd
}
