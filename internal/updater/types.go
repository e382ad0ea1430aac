package updater

import (
	"context"
	"errors"

	"github.com/blikvm/kvm-update/internal/artifact"
	"github.com/blikvm/kvm-update/internal/board"
	"github.com/blikvm/kvm-update/internal/mirror"
	"github.com/blikvm/kvm-update/internal/state"
)

var (
	// ErrEnvironment marks failures of the host environment (scratch
	// directory or status file) rather than of the update itself.
	ErrEnvironment = errors.New("environment error")

	ErrTagNotFound    = errors.New("release tag not found")
	ErrDownloadFailed = errors.New("artifact download failed")
	ErrInstallFailed  = errors.New("installation failed")
)

// Outcome is the terminal state of an update run.
type Outcome int

const (
	Failed Outcome = iota
	Updated
	UpToDate
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case UpToDate:
		return "up-to-date"
	default:
		return "failed"
	}
}

// Result is threaded through the pipeline and decides the final status.
type Result struct {
	Outcome Outcome
	Tag     string
	Local   string
	Mirror  mirror.Mirror
	Board   board.Type
	Err     error
}

// Status maps the result onto the persisted status code.
func (r Result) Status() state.Status {
	switch r.Outcome {
	case Updated, UpToDate:
		return state.Success
	default:
		return state.Failure
	}
}

func failed(r Result, err error) Result {
	r.Outcome = Failed
	r.Err = err
	return r
}

// Options are the per-invocation choices made on the command line.
type Options struct {
	// Version, when set, is installed as-is without asking the mirrors.
	Version string
	// Source forces a mirror and disables probing and fallback.
	Source   mirror.Mirror
	SkipDeps bool
}

// Params are the fixed inputs of every run.
type Params struct {
	Owner        string
	Repo         string
	DownloadDir  string
	Dependencies []string
}

type Selector interface {
	Select(ctx context.Context, forced mirror.Mirror) mirror.Selection
}

type Resolver interface {
	LatestTag(ctx context.Context, m mirror.Mirror, owner, repo string) string
}

type Fetcher interface {
	Fetch(ctx context.Context, task artifact.Task) error
}

type Installer interface {
	InstallDependencies(ctx context.Context, deps []string)
	InstallPackage(ctx context.Context, path string) error
}

type StatusStore interface {
	Path() string
	Write(status state.Status) error
}

type VersionSource interface {
	Installed() (string, error)
}

type BoardDetector interface {
	Detect() (board.Type, string, error)
}
