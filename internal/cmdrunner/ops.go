package cmdrunner

import (
	"context"
	"fmt"
	"os/exec"
)

// RunInDir runs cmd with dir as its working directory and returns the
// combined output. An empty dir means the current directory.
func (r *CommandsRunner) RunInDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = dir
	output, err := c.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, ctx.Err()
		}
		r.logger.Errorf("command failed: %s %v\n%s", cmd, args, string(output))
		return output, fmt.Errorf("command error: %w\n%s", err, string(output))
	}
	return output, nil
}

// RunWithOutput returns the combined output; failures are logged by RunInDir.
func (r *CommandsRunner) RunWithOutput(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	output, err := r.RunInDir(ctx, "", cmd, args...)
	if err != nil {
		return nil, err
	}
	return output, nil
}

// RunWithOutputNoErrLog returns stdout and the exit error without logging.
// Useful for commands like "ping" where a non-zero exit still carries a
// usable summary line.
func (r *CommandsRunner) RunWithOutputNoErrLog(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd, args...)
	output, err := c.Output()
	if ctx.Err() != nil {
		return output, ctx.Err()
	}
	return output, err
}
