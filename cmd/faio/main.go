package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/superlxh02/faio/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "faio",
	Short: "faio async runtime toolkit",
	Long:  `faio is an io_uring-backed work-stealing async runtime; this tool runs its stress scenarios and inspects configuration`,
}

// main registers subcommands and persistent flags, then executes the root
// command. If command execution returns an error, the process exits with
// status code 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(stressCmd)
	rootCmd.AddCommand(sleepbenchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to faio.toml (default: search upward)")
	rootCmd.PersistentFlags().Int("workers", 0, "worker thread count (default: hardware concurrency)")
	rootCmd.PersistentFlags().String("trace-level", "", "trace level (off|error|phase|detail|debug)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
