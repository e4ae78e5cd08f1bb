package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Securely erase the disc via the attached device",
	Long: `Securely erase the disc via the attached device transport. himdctl's
built-in Filesystem has no device transport of its own, so this always
reports ErrUnsupportedOperation unless run against a Disc opened with a
real himd.DeviceTransport.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.AllowUnsafeWipe {
			fmt.Print("This will erase the entire disc. Type \"yes\" to continue: ")
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			if strings.TrimSpace(line) != "yes" {
				return fmt.Errorf("himdctl: wipe cancelled")
			}
		}

		disc, err := openDisc()
		if err != nil {
			return err
		}
		return disc.Wipe(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(wipeCmd)
}
