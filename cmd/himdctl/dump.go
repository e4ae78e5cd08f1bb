package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gohimd/himd"
)

var (
	dumpTrackKey string
	dumpTitle    string
	dumpArtist   string
	dumpAlbum    string
)

var dumpCmd = &cobra.Command{
	Use:   "dump [index] [output-file]",
	Short: "Decode a track and export it as .oma, .wav or .mp3",
	Long: `Decode a track and export it as .oma, .wav or .mp3, chosen by the
track's stored codec. --track-key is required for ATRAC3/ATRAC3+/LPCM
tracks (the value UploadAudioTrack printed at upload time); it is ignored
for MP3/SMPA tracks.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		var trackKey [8]byte
		if dumpTrackKey != "" {
			trackKey, err = parseTrackKey(dumpTrackKey)
			if err != nil {
				return err
			}
		}

		disc, err := openDisc()
		if err != nil {
			return err
		}
		out, err := createOutputFile(args[1])
		if err != nil {
			return err
		}
		defer out.Close()

		tags := himd.ID3Tags{Title: dumpTitle, Artist: dumpArtist, Album: dumpAlbum}
		return disc.DumpTrack(out, index, trackKey, tags)
	},
}

func init() {
	dumpCmd.Flags().StringVar(&dumpTrackKey, "track-key", "", "16 hex character track key, for ATRAC3/ATRAC3+/LPCM tracks")
	dumpCmd.Flags().StringVar(&dumpTitle, "title", "", "ID3 title (mp3 export only)")
	dumpCmd.Flags().StringVar(&dumpArtist, "artist", "", "ID3 artist (mp3 export only)")
	dumpCmd.Flags().StringVar(&dumpAlbum, "album", "", "ID3 album (mp3 export only)")
	rootCmd.AddCommand(dumpCmd)
}
