package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/remotekeys/host/internal/mdns"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List remotekeys hosts advertising on the LAN",
	Long: `Browse mDNS for hosts started with --mdns and print their addresses.

Example:
  remotekeys discover --timeout 5s`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "How long to browse")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(hosts) == 0 {
		fmt.Fprintln(out, "No hosts found.")
		return nil
	}
	for _, h := range hosts {
		fmt.Fprintf(out, "%-24s %s (protocol %s)\n", h.Name, h.Addr(), h.Version)
	}
	return nil
}
