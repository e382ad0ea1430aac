package cmd

import (
	"fmt"

	"github.com/blikvm/kvm-update/internal/updatelog"
	"github.com/spf13/cobra"
)

var (
	logsLines int
	logsRunID string
)

var LogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent updater log lines",
	Long:  `Print the last lines of the updater log file, optionally only those of one update run.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Cfg.Logging.File == "" {
			return usageError(fmt.Errorf("file logging is disabled (logging.file is empty)"))
		}
		if logsLines < 1 {
			return usageError(fmt.Errorf("--lines must be at least 1, got %d", logsLines))
		}

		lines, err := updatelog.Tail(Cfg.Logging.File, logsLines)
		if err != nil {
			return usageError(err)
		}
		for _, line := range updatelog.Format(lines, logsRunID) {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	LogsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of lines to read from the end of the log")
	LogsCmd.Flags().StringVar(&logsRunID, "run", "", "only show lines of this run ID")
	RootCmd.AddCommand(LogsCmd)
}
