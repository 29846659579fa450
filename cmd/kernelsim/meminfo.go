package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMeminfoCmd(cfg *simConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "meminfo",
		Short: "Boot the kernel and print heap/frame usage via syscall #9",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := bootKernel(cfg)
			if err != nil {
				return err
			}
			if _, err := k.Syscall(9, [3]uintptr{}); err != nil {
				return err
			}
			info := k.Syscalls.LastMemInfo()
			fmt.Printf("heap:   used=%d peak=%d\n", info.HeapUsed, info.HeapPeak)
			fmt.Printf("frames: used=%d total=%d\n", info.FramesUsed, info.FramesTotal)
			return nil
		},
	}
}
