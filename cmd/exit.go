package cmd

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitEnvironment = 2
)

// ExitError carries the exit code for an error returned by a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitEnvironment, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code. Errors
// raised by cobra itself (unknown flags, bad arguments) are usage errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitEnvironment
}
