package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBootCmd(cfg *simConfig) *cobra.Command {
	var ticks int

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel, run N synthetic timer ticks, and print the init PID",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := bootKernel(cfg)
			if err != nil {
				return err
			}
			log.WithField("pid", 1).Info("init process created")

			for i := 0; i < ticks; i++ {
				k.Tick()
			}
			fmt.Printf("init pid=1 ticks=%d paging=%v\n", ticks, k.AS.Enabled())
			return nil
		},
	}
	cmd.Flags().IntVar(&ticks, "ticks", 0, "number of synthetic timer ticks to run after boot")
	return cmd
}
