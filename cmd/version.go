package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version of the updater binary.`,
	Args:  cobra.NoArgs,
	// needs neither configuration nor logging
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
