package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [index...]",
	Short: "Delete one or more tracks and reclaim their ATDATA space",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		indices := make([]int, len(args))
		for i, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("himdctl: invalid track index %q: %w", a, err)
			}
			indices[i] = n
		}

		disc, err := openDisc()
		if err != nil {
			return err
		}
		return disc.DeleteTracks(indices)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
