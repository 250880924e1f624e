// Package cli implements the healthagg developer command line.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "healthagg",
	Short: "Offline tools for the health aggregation engine",
	Long: `healthagg runs the daily aggregation engine against local record files,
classifies record types and mints development bearer tokens.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
