package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Status is the outcome code polled by the web UI.
type Status int

const (
	InProgress Status = 0
	Success    Status = 1
	Failure    Status = 2
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrNotFound is returned when the status file does not exist yet.
var ErrNotFound = errors.New("status not found")

type statusDocument struct {
	UpdateStatus Status `json:"update_status"`
}

// StatusFile persists the update status as {"update_status": N}.
type StatusFile struct {
	path string
	mu   sync.Mutex
}

// NewStatusFile creates a status file handle for path.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: filepath.Clean(path)}
}

// Path returns the status file location.
func (f *StatusFile) Path() string {
	return f.path
}

// Write replaces the status file atomically so a poller never reads a
// half-written document.
func (f *StatusFile) Write(status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(statusDocument{UpdateStatus: status})
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".update_status-*.json")
	if err != nil {
		return fmt.Errorf("create temporary status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Read returns the current status.
func (f *StatusFile) Read() (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("read status file: %w", err)
	}

	var doc statusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("decode status file: %w", err)
	}
	return doc.UpdateStatus, nil
}
