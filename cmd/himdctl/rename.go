package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gohimd/himd"
)

var renameDiscCmd = &cobra.Command{
	Use:   "rename-disc [title]",
	Short: "Rename the disc, or clear its title with an empty string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		disc, err := openDisc()
		if err != nil {
			return err
		}
		if err := disc.RenameDisc(args[0]); err != nil {
			return err
		}
		return disc.Flush()
	},
}

var renameTrackField string

var renameTrackCmd = &cobra.Command{
	Use:   "rename-track [index] [value]",
	Short: "Rewrite a track's title, artist or album",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("himdctl: invalid track index %q: %w", args[0], err)
		}
		var field himd.TrackStringField
		switch renameTrackField {
		case "title":
			field = himd.FieldTitle
		case "artist":
			field = himd.FieldArtist
		case "album":
			field = himd.FieldAlbum
		default:
			return fmt.Errorf("himdctl: --field must be one of title, artist, album")
		}

		disc, err := openDisc()
		if err != nil {
			return err
		}
		if err := disc.RenameTrack(index, field, args[1]); err != nil {
			return err
		}
		return disc.Flush()
	},
}

func init() {
	rootCmd.AddCommand(renameDiscCmd)

	renameTrackCmd.Flags().StringVar(&renameTrackField, "field", "title", "field to rewrite: title, artist or album")
	rootCmd.AddCommand(renameTrackCmd)
}
