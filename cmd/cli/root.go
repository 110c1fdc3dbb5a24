package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "buckshot",
	Short: "Buckshot CLI",
	Long: "-------------------------------------------------------------------\n" +
		"                          Buckshot CLI\n" +
		"-------------------------------------------------------------------\n" +
		"Submit videos to every account in the pool and manage the pool.",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().String("server", "", "Server URL (or BUCKSHOT_SERVER env var)")
	rootCmd.PersistentFlags().String("email", "", "Operator email recorded in audit entries (or BUCKSHOT_EMAIL env var)")
	rootCmd.PersistentFlags().String("output", "", "Output format: json")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
