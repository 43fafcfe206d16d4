// Command api-gateway serves the Bedrock failover router over HTTP and
// checks target configuration files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "api-gateway",
		Short:         "Redundant Bedrock inference router",
		Long:          "Routes prompts across an ordered ladder of models and regions, retrying throttled calls before failing over.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console); overrides LOG_FORMAT")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTargetsCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
