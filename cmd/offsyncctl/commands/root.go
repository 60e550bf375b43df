// Package commands implements the CLI commands for the offsyncctl client.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "offsyncctl",
	Short: "offsync control - operator client for a running offsync daemon",
	Long: `offsyncctl is the command-line client for inspecting and managing a
running offsync daemon through its local operator API.

Use this tool to check connectivity and queue state, requeue dead
letters, trigger a sync cycle, and manage the cache.

Use "offsyncctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().String("addr", "http://127.0.0.1:7033", "Address of the offsync operator API")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
