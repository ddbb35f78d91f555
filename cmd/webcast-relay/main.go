package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webcast-relay",
		Short: "Relay live webcast feeds to websocket subscribers",
		Long: `webcast-relay connects to live webcast feeds upstream and fans the
decoded events out to downstream websocket subscribers.

One upstream connection is held per streamer regardless of how many
clients subscribe to it. Subscribers speak a small JSON protocol on
/ws; health and Prometheus metrics are served alongside.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webcast-relay %s (%s)\n", version, commit)
		},
	}
}
