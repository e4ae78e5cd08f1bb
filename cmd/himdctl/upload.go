package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gohimd/himd"
	"github.com/gohimd/himd/internal/mp3scan"
)

var (
	uploadTitle  string
	uploadArtist string
	uploadAlbum  string
)

var uploadMP3Cmd = &cobra.Command{
	Use:   "upload-mp3 [file]",
	Short: "Upload a complete MP3 file as a new SMPA track",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("himdctl: read %s: %w", args[0], err)
		}
		disc, err := openDisc()
		if err != nil {
			return err
		}

		var contentIDLow32 uint32
		result, err := disc.UploadMP3(mp3scan.Scanner{}, data, uploadTitle, uploadArtist, uploadAlbum, contentIDLow32)
		if err != nil {
			return err
		}
		if err := disc.Flush(); err != nil {
			return err
		}
		fmt.Printf("uploaded track %d (%.1fs)\n", result.TrackIndex, result.Duration)
		return nil
	},
}

var (
	uploadCodec     string
	uploadFrameSize int
	uploadChannels  int
	uploadRate      int
)

var uploadAudioCmd = &cobra.Command{
	Use:   "upload-audio [file]",
	Short: "Upload raw ATRAC3/ATRAC3+/LPCM frame data as a new signed track",
	Long: `Upload raw ATRAC3/ATRAC3+/LPCM frame data as a new signed track.

file must contain concatenated frameSize-byte frames in playback order,
already encoded by an external ATRAC3/ATRAC3+ encoder for those codecs, or
raw 16-bit stereo PCM samples for LPCM. This opens a secure session against
the disc's attached device transport (or proceeds key-only if none is
attached) and signs the resulting track.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("himdctl: read %s: %w", args[0], err)
		}

		var codecID himd.CodecID
		switch uploadCodec {
		case "atrac3":
			codecID = himd.CodecATRAC3
		case "atrac3plus":
			codecID = himd.CodecATRAC3plusOrMPEG
		case "lpcm":
			codecID = himd.CodecLPCM
		default:
			return fmt.Errorf("himdctl: --codec must be one of atrac3, atrac3plus, lpcm")
		}
		_, info, err := himd.GenerateCodecInfo(codecID, uploadFrameSize, uploadChannels, uploadRate)
		if err != nil {
			return err
		}

		disc, err := openDisc()
		if err != nil {
			return err
		}
		sess, err := disc.OpenSession(context.Background())
		if err != nil {
			return err
		}

		result, err := disc.UploadAudioTrack(sess, codecID, info, data, uploadTitle, uploadArtist, uploadAlbum)
		if err != nil {
			return err
		}
		if err := disc.FinalizeSession(context.Background(), sess); err != nil {
			return err
		}
		fmt.Printf("uploaded track %d, track key %s (save this to dump the track later)\n",
			result.TrackIndex, hex.EncodeToString(result.TrackKey[:]))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{uploadMP3Cmd, uploadAudioCmd} {
		c.Flags().StringVar(&uploadTitle, "title", "", "track title")
		c.Flags().StringVar(&uploadArtist, "artist", "", "track artist")
		c.Flags().StringVar(&uploadAlbum, "album", "", "track album")
	}
	uploadAudioCmd.Flags().StringVar(&uploadCodec, "codec", "atrac3", "codec: atrac3, atrac3plus or lpcm")
	uploadAudioCmd.Flags().IntVar(&uploadFrameSize, "frame-size", 0, "bytes per frame (required for atrac3/atrac3plus)")
	uploadAudioCmd.Flags().IntVar(&uploadChannels, "channels", 2, "channel count")
	uploadAudioCmd.Flags().IntVar(&uploadRate, "sample-rate", 44100, "sample rate in Hz")

	rootCmd.AddCommand(uploadMP3Cmd)
	rootCmd.AddCommand(uploadAudioCmd)
}
