package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blikvm/kvm-update/internal/cmdrunner"
	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/mitchellh/go-ps"
)

// ErrInstallFailed is returned when dpkg rejects the package.
var ErrInstallFailed = errors.New("package installation failed")

// packageManagers hold the dpkg lock while they run.
var packageManagers = map[string]bool{
	"apt":             true,
	"apt-get":         true,
	"dpkg":            true,
	"unattended-upgr": true,
}

const lockPollInterval = time.Second

// ProcessLister returns the running processes.
type ProcessLister func() ([]ps.Process, error)

// Installer installs runtime dependencies and the downloaded package.
type Installer struct {
	runner   cmdrunner.CommandRunner
	logger   *logger.Logger
	lockWait time.Duration
	isRoot   func() bool
	procs    ProcessLister
}

// NewInstaller creates an installer that waits up to lockWait for other
// package managers before running dpkg.
func NewInstaller(runner cmdrunner.CommandRunner, lockWait time.Duration, log *logger.Logger) *Installer {
	return &Installer{
		runner:   runner,
		logger:   log,
		lockWait: lockWait,
		isRoot:   func() bool { return os.Geteuid() == 0 },
		procs:    ps.Processes,
	}
}

// InstallDependencies installs the runtime libraries the package needs.
// Every failure is logged and swallowed: a missing dependency surfaces later
// as a dpkg failure.
func (i *Installer) InstallDependencies(ctx context.Context, deps []string) {
	if len(deps) == 0 {
		return
	}
	if !i.isRoot() {
		i.logger.Warn("Not running as root, skipping dependency installation")
		return
	}

	if out, err := i.runner.RunWithOutputNoErrLog(ctx, "apt-get", "update"); err != nil {
		i.logger.WithFields(logger.Fields{
			"error":  err,
			"output": strings.TrimSpace(string(out)),
		}).Debug("apt-get update failed, continuing")
	}

	args := append([]string{"install", "-y"}, deps...)
	if _, err := i.runner.RunWithOutput(ctx, "apt-get", args...); err != nil {
		i.logger.WithFields(logger.Fields{
			"dependencies": strings.Join(deps, " "),
		}).Warn("Dependency installation failed, continuing")
		return
	}
	i.logger.WithFields(logger.Fields{"dependencies": strings.Join(deps, " ")}).Info("Dependencies installed")
}

// InstallPackage runs dpkg -i on the downloaded package from its directory.
func (i *Installer) InstallPackage(ctx context.Context, path string) error {
	if err := i.waitForPackageManager(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	dir, file := filepath.Split(path)
	i.logger.WithFields(logger.Fields{"package": path}).Info("Installing package")

	out, err := i.runner.RunInDir(ctx, dir, "dpkg", "-i", file)
	if err != nil {
		i.logger.WithFields(logger.Fields{
			"package": path,
			"output":  strings.TrimSpace(string(out)),
		}).Error("dpkg reported failure")
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	i.logger.WithFields(logger.Fields{"package": path}).Info("Package installed")
	return nil
}

// waitForPackageManager blocks while another package manager process runs,
// up to lockWait. On timeout dpkg is attempted anyway and reports the lock.
func (i *Installer) waitForPackageManager(ctx context.Context) error {
	if i.lockWait <= 0 {
		return nil
	}
	deadline := time.Now().Add(i.lockWait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		holder, err := i.lockHolder()
		if err != nil {
			i.logger.WithError(err).Debug("Unable to list processes, not waiting for package manager")
			return nil
		}
		if holder == "" {
			return nil
		}
		if !time.Now().Before(deadline) {
			i.logger.WithFields(logger.Fields{"process": holder}).Warn("Package manager still running, installing anyway")
			return nil
		}

		i.logger.WithFields(logger.Fields{"process": holder}).Info("Waiting for package manager to finish")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (i *Installer) lockHolder() (string, error) {
	processList, err := i.procs()
	if err != nil {
		return "", err
	}

	self := os.Getpid()
	for _, p := range processList {
		if p.Pid() == self {
			continue
		}
		if packageManagers[p.Executable()] {
			return p.Executable(), nil
		}
	}
	return "", nil
}
