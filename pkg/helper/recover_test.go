package helper

import (
	"bytes"
	"testing"

	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.Init(logger.Config{Level: "error", Format: "json", Output: &buf}))
	log := logger.NewLogger("helper_test")

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer RecoverPanic(log, "worker")
		panic("boom")
	}()
	<-done

	require.Contains(t, buf.String(), "PANIC recovered in worker: boom")
	require.Contains(t, buf.String(), `"goroutine":"worker"`)
}

func TestRecoverPanicWithoutPanic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.Init(logger.Config{Level: "error", Format: "json", Output: &buf}))

	func() {
		defer RecoverPanic(logger.NewLogger("helper_test"), "worker")
	}()

	require.Empty(t, buf.String())
}
