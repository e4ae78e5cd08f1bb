package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gohimd/himd/internal/config"
)

var (
	mountDir   string
	configPath string
	cfg        config.Config
)

// rootCmd is the base command when himdctl is called without a
// subcommand, mirroring tombatools' rootCmd/Execute split.
var rootCmd = &cobra.Command{
	Use:   "himdctl",
	Short: "Inspect and edit HiMD MiniDisc volumes",
	Long: `himdctl reads and writes the on-disc object store, DRM key material
and generation files of a HiMD MiniDisc volume mounted as a local directory
tree (as produced by mounting the device or extracting a disc image).

Examples:
  himdctl list --mount /mnt/himd
  himdctl rename-disc --mount /mnt/himd "My Mix"
  himdctl upload-mp3 --mount /mnt/himd track.mp3 --title "Song"
  himdctl dump --mount /mnt/himd 0 --track-key 0011223344556677 out.oma`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if mountDir == "" {
			mountDir = cfg.MountDir
		}
		if mountDir == "" {
			return fmt.Errorf("himdctl: --mount is required (or set mount_dir in %s)", configPath)
		}
		return nil
	},
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&mountDir, "mount", "", "directory the HiMD volume is mounted at")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "himdctl.yaml", "path to the himdctl YAML config file")
}
