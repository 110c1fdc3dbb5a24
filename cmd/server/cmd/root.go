// Package cmd holds the buckshot-server commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "buckshot-server",
	Short: "Distribute videos across a pool of platform accounts",
	Long: `buckshot-server accepts upload jobs, fans each one out to every eligible
account in the pool and uploads in the background. Configuration is read
from the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
