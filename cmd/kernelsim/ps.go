package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPsCmd(cfg *simConfig) *cobra.Command {
	var spawn int

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "Boot the kernel, fork N demo children off init, and list the process table",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := bootKernel(cfg)
			if err != nil {
				return err
			}
			init := k.Procs.Current()
			for i := 0; i < spawn; i++ {
				if _, err := k.Procs.Fork(init); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tPPID\tSTATE\tNAME\tPRIO")
			for _, p := range k.Procs.Snapshot() {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\n", p.PID, p.PPID, p.State, p.Name, p.Entity.EffectivePrio)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&spawn, "spawn", 3, "number of demo children to fork off init")
	return cmd
}
