package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gohimd/himd"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tracks on a HiMD volume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		disc, err := openDisc()
		if err != nil {
			return err
		}
		tracks, err := disc.ListTracks()
		if err != nil {
			return err
		}
		for _, t := range tracks {
			fmt.Printf("%3d  slot=%-4d codec=%s  %-30s %-20s %s\n",
				t.Index, t.Slot, codecName(t.CodecID), t.Title, t.Artist, t.Album)
		}
		return nil
	},
}

func codecName(id himd.CodecID) string {
	switch id {
	case himd.CodecATRAC3:
		return "ATRAC3"
	case himd.CodecATRAC3plusOrMPEG:
		return "ATRAC3+/MPEG"
	case himd.CodecLPCM:
		return "LPCM"
	default:
		return fmt.Sprintf("0x%02X", byte(id))
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
