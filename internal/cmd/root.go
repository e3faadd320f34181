// Package cmd implements the autodeploy command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/output"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	logLevel     string
	verbose      bool
	quiet        bool

	autodeployVersion = "dev"
)

// Execute builds the command tree and runs it.
func Execute(version, commit, date string) error {
	autodeployVersion = version
	buildCommit, buildDate = commit, date

	rootCmd := &cobra.Command{
		Use:   "autodeploy",
		Short: "Deploy and update versioned host plugins",
		Long: `autodeploy keeps host application plugins deployed and up to date.

A registry lists the published deployments. Each deployment manifest names an
artifact manifest; autodeploy stages new versions next to the old ones, swaps them
in while the host has them unloaded, and rolls back when anything fails.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the agent config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"trace", "debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd.Execute()
}
