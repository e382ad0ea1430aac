package state

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Wait blocks until the status leaves InProgress. The status directory is
// watched with fsnotify; poll re-reads the file in case the directory is
// recreated underneath the watcher.
func (f *StatusFile) Wait(ctx context.Context, poll time.Duration) (Status, error) {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(f.path)); err == nil {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		status, err := f.Read()
		if err == nil && status != InProgress {
			return status, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}

		select {
		case <-ctx.Done():
			return InProgress, ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-ticker.C:
		}
	}
}
