package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "remotekeys",
	Short: "Drive this computer's keyboard from a paired phone",
	Long: `remotekeys turns a phone into a remote for this computer: arrow keys,
media keys, presentation shortcuts and free text.

A waiting screen shows a QR code and PIN. Scanning or typing it pairs the
phone, which then opens the control panel. An admin panel observes every
event.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "remotekeys version %s\n", Version)
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("remotekeys version {{.Version}}\n")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
