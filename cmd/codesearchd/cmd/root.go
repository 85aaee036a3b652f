// Package cmd implements the codesearchd CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codesearchd",
	Short: "Local per-workspace code-search daemon",
	Long: `codesearchd maintains a lexical (BM25) and a semantic (HNSW) index
per registered workspace, keeps both consistent with on-disk changes via a
file watcher, and serves search over a local HTTP + WebSocket API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
