package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blikvm/kvm-update/internal/state"
	"github.com/spf13/cobra"
)

const statusPollInterval = 2 * time.Second

var (
	statusWait    bool
	statusTimeout time.Duration
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the result of the last update",
	Long: `Print the update status code (0 in progress, 1 success, 2 failure).
With --wait, block until a running update finishes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := state.NewStatusFile(Cfg.Paths.StatusFile)

		var (
			status state.Status
			err    error
		)
		if statusWait {
			ctx := cmd.Context()
			if statusTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, statusTimeout)
				defer cancel()
			}
			status, err = store.Wait(ctx, statusPollInterval)
		} else {
			status, err = store.Read()
		}

		if errors.Is(err, state.ErrNotFound) {
			return usageError(fmt.Errorf("no update status at %s", store.Path()))
		}
		if err != nil {
			return usageError(err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", int(status), status)
		if status == state.Failure {
			return &ExitError{Code: ExitFailed}
		}
		return nil
	},
}

func init() {
	StatusCmd.Flags().BoolVar(&statusWait, "wait", false, "wait until the running update finishes")
	StatusCmd.Flags().DurationVar(&statusTimeout, "timeout", 0, "maximum time to wait (0 waits forever)")
	RootCmd.AddCommand(StatusCmd)
}
