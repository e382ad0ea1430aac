package helper

import (
	"runtime/debug"

	"github.com/blikvm/kvm-update/pkg/logger"
)

// RecoverPanic recovers from panics in goroutines and logs the stack trace.
// Usage: defer helper.RecoverPanic(logger, "goroutine-name")
func RecoverPanic(log *logger.Logger, name string) {
	if r := recover(); r != nil {
		log.WithFields(logger.Fields{"goroutine": name}).Errorf("PANIC recovered in %s: %v\nStack: %s", name, r, debug.Stack())
	}
}
