package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blikvm/kvm-update/internal/artifact"
	"github.com/blikvm/kvm-update/internal/mirror"
	"github.com/blikvm/kvm-update/internal/state"
	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Updater runs the update pipeline:
// INIT → DETECT_BOARD → SELECT_SOURCE → RESOLVE_TAG → COMPARE_VERSION →
// DOWNLOAD → INSTALL, ending in DONE or FAILED.
type Updater struct {
	params    Params
	selector  Selector
	resolver  Resolver
	fetcher   Fetcher
	installer Installer
	status    StatusStore
	versions  VersionSource
	detector  BoardDetector
	logger    *logger.Logger
}

// Deps groups the collaborators of an Updater.
type Deps struct {
	Selector  Selector
	Resolver  Resolver
	Fetcher   Fetcher
	Installer Installer
	Status    StatusStore
	Versions  VersionSource
	Detector  BoardDetector
}

// New creates an updater from its parameters and collaborators.
func New(params Params, deps Deps, log *logger.Logger) *Updater {
	return &Updater{
		params:    params,
		selector:  deps.Selector,
		resolver:  deps.Resolver,
		fetcher:   deps.Fetcher,
		installer: deps.Installer,
		status:    deps.Status,
		versions:  deps.Versions,
		detector:  deps.Detector,
		logger:    log,
	}
}

// Run executes one update. The returned error is non-nil only when the
// environment could not be prepared or the final status could not be
// recorded; update failures are reported through Result.
func (u *Updater) Run(ctx context.Context, opts Options) (Result, error) {
	log := u.logger.WithFields(logger.Fields{"run_id": uuid.NewString()})

	if err := u.prepare(); err != nil {
		log.WithError(err).Error("Unable to prepare download directory")
		return Result{Outcome: Failed, Err: err}, err
	}

	result := u.pipeline(ctx, log, opts)

	if err := u.status.Write(result.Status()); err != nil {
		log.WithError(err).Error("Unable to write final status")
		return result, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}

	entry := log.WithFields(logger.Fields{
		"outcome": result.Outcome.String(),
		"tag":     result.Tag,
		"mirror":  result.Mirror,
		"status":  result.Status().String(),
	})
	if result.Err != nil {
		entry.WithError(result.Err).Error("Update failed")
	} else {
		entry.Info("Update finished")
	}
	return result, nil
}

// prepare implements INIT: a fresh scratch directory and an in-progress status.
func (u *Updater) prepare() error {
	if err := os.RemoveAll(u.params.DownloadDir); err != nil {
		return fmt.Errorf("%w: clear %s: %w", ErrEnvironment, u.params.DownloadDir, err)
	}
	if err := os.MkdirAll(u.params.DownloadDir, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrEnvironment, u.params.DownloadDir, err)
	}
	if dir := filepath.Dir(u.status.Path()); dir != u.params.DownloadDir {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: create %s: %w", ErrEnvironment, dir, err)
		}
	}
	if err := u.status.Write(state.InProgress); err != nil {
		return fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	return nil
}

func (u *Updater) pipeline(ctx context.Context, log *logrus.Entry, opts Options) Result {
	var result Result

	// DETECT_BOARD
	boardType, model, err := u.detector.Detect()
	if err != nil {
		log.WithError(err).Warn("Unable to read board model")
	}
	result.Board = boardType
	fileName, err := boardType.PackageName()
	if err != nil {
		log.WithFields(logger.Fields{"model": model, "board": boardType}).Error("Unsupported board")
		return failed(result, err)
	}
	log.WithFields(logger.Fields{"model": model, "board": boardType}).Infof("Board type: %s", boardType)

	if !opts.SkipDeps {
		u.installer.InstallDependencies(ctx, u.params.Dependencies)
	}

	// SELECT_SOURCE
	sel := u.selector.Select(ctx, opts.Source)
	result.Mirror = sel.Chosen

	// RESOLVE_TAG
	tag, err := u.resolveTag(ctx, log, &sel, opts.Version)
	result.Mirror = sel.Chosen
	if err != nil {
		return failed(result, err)
	}
	result.Tag = tag

	// COMPARE_VERSION
	local, err := u.versions.Installed()
	if err != nil {
		log.WithError(err).Warnf("Unable to read local version, assuming %s", local)
	}
	result.Local = local
	log.Infof("The local version is %s", local)
	if tag == local {
		log.Info("There is no newer version available")
		result.Outcome = UpToDate
		return result
	}
	log.Infof("Upgrading %s ==> %s", local, tag)

	// DOWNLOAD
	task, err := u.download(ctx, log, &sel, tag, fileName)
	result.Mirror = sel.Chosen
	if err != nil {
		return failed(result, err)
	}

	// INSTALL
	log.Info("Download release package success, start to install")
	if err := u.installer.InstallPackage(ctx, task.Path()); err != nil {
		return failed(result, fmt.Errorf("%w: %w", ErrInstallFailed, err))
	}

	log.Info("Upgrade successful")
	result.Outcome = Updated
	return result
}

func (u *Updater) resolveTag(ctx context.Context, log *logrus.Entry, sel *mirror.Selection, explicit string) (string, error) {
	if explicit != "" {
		log.Infof("Specified version: %s", explicit)
		return explicit, nil
	}

	tag := u.resolver.LatestTag(ctx, sel.Chosen, u.params.Owner, u.params.Repo)
	if tag == "" && !sel.Forced {
		log.Warnf("Failed to get latest tag from %s, trying %s", sel.Chosen, sel.Fallback)
		if tag = u.resolver.LatestTag(ctx, sel.Fallback, u.params.Owner, u.params.Repo); tag != "" {
			sel.Swap()
		}
	}
	if tag == "" {
		if sel.Forced {
			return "", fmt.Errorf("%w on %s", ErrTagNotFound, sel.Chosen)
		}
		return "", fmt.Errorf("%w on %s and %s", ErrTagNotFound, sel.Chosen, sel.Fallback)
	}

	log.WithFields(logger.Fields{"mirror": sel.Chosen}).Infof("The latest release tag is %s", tag)
	return tag, nil
}

func (u *Updater) download(ctx context.Context, log *logrus.Entry, sel *mirror.Selection, tag, fileName string) (artifact.Task, error) {
	task := artifact.Task{
		Mirror:   sel.Chosen,
		Owner:    u.params.Owner,
		Repo:     u.params.Repo,
		Tag:      tag,
		FileName: fileName,
		DestDir:  u.params.DownloadDir,
	}

	log.Infof("Download package %s from %s, please wait", fileName, sel.Chosen)
	err := u.fetcher.Fetch(ctx, task)
	if err == nil {
		return task, nil
	}
	if sel.Forced || errors.Is(err, artifact.ErrNoFileName) {
		return task, fmt.Errorf("%w from %s: %w", ErrDownloadFailed, sel.Chosen, err)
	}

	log.WithError(err).Warnf("Download from %s failed, trying %s", sel.Chosen, sel.Fallback)
	task.Mirror = sel.Fallback
	if fallbackErr := u.fetcher.Fetch(ctx, task); fallbackErr != nil {
		return task, fmt.Errorf("%w from both sources: %w", ErrDownloadFailed, errors.Join(err, fallbackErr))
	}
	sel.Swap()
	return task, nil
}
