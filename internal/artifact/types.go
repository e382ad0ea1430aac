package artifact

import (
	"errors"
	"path/filepath"

	"github.com/blikvm/kvm-update/internal/mirror"
)

var (
	// ErrNoFileName is returned when no artifact name is known for the board.
	ErrNoFileName = errors.New("no artifact file name")
	// ErrSizeMismatch is returned when fewer or more bytes arrived than the
	// server advertised. The partial file stays on disk but must not be used.
	ErrSizeMismatch = errors.New("downloaded size does not match content length")
	// ErrInsufficientSpace is returned when the destination filesystem cannot
	// hold the advertised content length.
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// Task describes one download attempt.
type Task struct {
	Mirror   mirror.Mirror
	Owner    string
	Repo     string
	Tag      string
	FileName string
	DestDir  string
}

// Path is where the artifact is written.
func (t Task) Path() string {
	return filepath.Join(t.DestDir, t.FileName)
}

// ProgressFunc receives the cumulative bytes written and the advertised
// total, which is 0 when the server sent no Content-Length.
type ProgressFunc func(written, total int64)
