// Command oxidux is the developer-workstation reverse proxy and
// process supervisor described in spec.md: it maps hostnames to
// locally running app servers, demand-starts them, and exposes a
// control-plane client for restarting, stopping, and attaching to
// their terminal sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "oxidux",
	Short:         "oxidux -- hostname-routed reverse proxy and process supervisor",
	Long:          "oxidux maps convenient hostnames to locally running app servers, starting them on demand.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
