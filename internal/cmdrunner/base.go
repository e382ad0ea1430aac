package cmdrunner

import (
	"context"

	"github.com/blikvm/kvm-update/pkg/logger"
)

// CommandRunner executes external programs. The ping prober and the
// package installer depend on this interface so tests can script output.
type CommandRunner interface {
	RunInDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error)
	RunWithOutput(ctx context.Context, cmd string, args ...string) ([]byte, error)
	RunWithOutputNoErrLog(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

// CommandsRunner runs commands on the host and logs failures.
type CommandsRunner struct {
	logger *logger.Logger
}

// NewCommandsRunner creates a runner logging under the command_runner module.
func NewCommandsRunner() *CommandsRunner {
	return &CommandsRunner{logger: logger.NewLogger("command_runner")}
}

var _ CommandRunner = (*CommandsRunner)(nil)
