package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/blikvm/kvm-update/cmd"
)

var version = "1.0.0"

func main() {
	if err := cmd.Execute(version); err != nil {
		var exitErr *cmd.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
