package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blikvm/kvm-update/internal/artifact"
	"github.com/blikvm/kvm-update/internal/board"
	"github.com/blikvm/kvm-update/internal/cmdrunner"
	"github.com/blikvm/kvm-update/internal/config"
	"github.com/blikvm/kvm-update/internal/installer"
	"github.com/blikvm/kvm-update/internal/mirror"
	"github.com/blikvm/kvm-update/internal/release"
	"github.com/blikvm/kvm-update/internal/state"
	"github.com/blikvm/kvm-update/internal/updater"
	"github.com/blikvm/kvm-update/pkg/helper"
	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/blikvm/kvm-update/pkg/ping"
	"github.com/spf13/cobra"
)

type updateFlags struct {
	source    string
	pingCount int
	skipDeps  bool
}

func (f *updateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "force update source: github or gitee (default: auto by ping)")
	cmd.Flags().IntVar(&f.pingCount, "ping-count", 0, "ping count for source selection (default: probe.count from config)")
	cmd.Flags().BoolVar(&f.skipDeps, "skip-deps", false, "skip installing runtime dependencies with apt-get")
}

var updateCmdFlags updateFlags

var UpdateCmd = &cobra.Command{
	Use:   "update [version]",
	Short: "Download and install a BliKVM release",
	Long: `Download and install the latest BliKVM release, or the given version.
The release mirror is chosen by ping latency unless --source is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd.Context(), updateCmdFlags, args)
	},
}

func init() {
	updateCmdFlags.register(UpdateCmd)
	RootCmd.AddCommand(UpdateCmd)
}

func runUpdate(ctx context.Context, flags updateFlags, args []string) error {
	log := logger.NewLogger("main")

	source, err := mirror.ParseMirror(flags.source)
	if err != nil {
		return usageError(err)
	}

	pingCount := Cfg.Probe.Count
	if flags.pingCount != 0 {
		if flags.pingCount < 1 {
			return usageError(fmt.Errorf("--ping-count must be at least 1, got %d", flags.pingCount))
		}
		pingCount = flags.pingCount
	}

	opts := updater.Options{Source: source, SkipDeps: flags.skipDeps}
	if len(args) == 1 {
		opts.Version = args[0]
	}

	runner := newRunManager(ctx, log)
	defer runner.cleanup()

	result, err := newUpdater(Cfg, pingCount).Run(runner.ctx, opts)
	if err != nil {
		return &ExitError{Code: ExitEnvironment, Err: err}
	}

	switch result.Outcome {
	case updater.Updated:
		log.Info("If any abnormalities are found after upgrading, the system can be restored by flashing it again.")
		log.Info("Upgrade successful!")
	case updater.UpToDate:
		log.Info("There is no newer stable version available.")
	default:
		if errors.Is(result.Err, context.Canceled) {
			log.Warn("Update interrupted")
		}
		return &ExitError{Code: ExitFailed, Err: result.Err}
	}
	return nil
}

// newUpdater wires the pipeline from configuration.
func newUpdater(cfg *config.Config, pingCount int) *updater.Updater {
	endpoints := mirror.EndpointsFromConfig(cfg)
	breakerSettings := func(scope string) mirror.BreakerSettings {
		return mirror.BreakerSettings{
			Scope:       scope,
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout,
		}
	}
	// API and download hosts trip separately.
	resolverBreakers := mirror.NewBreakers(breakerSettings("api"), logger.NewLogger("mirror"))
	fetcherBreakers := mirror.NewBreakers(breakerSettings("download"), logger.NewLogger("mirror"))
	runner := cmdrunner.NewCommandsRunner()

	return updater.New(updater.Params{
		Owner:        cfg.Repo.Owner,
		Repo:         cfg.Repo.Name,
		DownloadDir:  cfg.Paths.DownloadDir,
		Dependencies: cfg.Dependencies,
	}, updater.Deps{
		Selector: mirror.NewSelector(
			ping.NewClient(logger.NewLogger("ping"), runner),
			endpoints, pingCount, cfg.Probe.Timeout,
			logger.NewLogger("selector"),
		),
		Resolver:  release.NewResolver(endpoints, resolverBreakers, cfg.HTTP.MetadataTimeout, cfg.HTTP.UserAgent, logger.NewLogger("release")),
		Fetcher:   artifact.NewFetcher(endpoints, fetcherBreakers, cfg.HTTP.DownloadTimeout, cfg.HTTP.UserAgent, os.Stdout, logger.NewLogger("artifact")),
		Installer: installer.NewInstaller(runner, cfg.Install.LockWait, logger.NewLogger("installer")),
		Status:    state.NewStatusFile(cfg.Paths.StatusFile),
		Versions:  state.NewVersionFile(cfg.Paths.VersionFile, cfg.BaselineVersion),
		Detector:  board.NewDetector(cfg.Paths.BoardModel),
	}, logger.NewLogger("updater"))
}

// runManager cancels the update context on SIGINT or SIGTERM so the run
// still records a final status.
type runManager struct {
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
}

func newRunManager(parent context.Context, log *logger.Logger) *runManager {
	ctx, cancel := context.WithCancel(parent)
	m := &runManager{
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
	}
	signal.Notify(m.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go m.handleSignals()
	return m
}

func (m *runManager) handleSignals() {
	defer helper.RecoverPanic(m.logger, "signal-handler")

	select {
	case sig, ok := <-m.sigChan:
		if !ok {
			return
		}
		m.logger.Warnf("Received signal %s, cancelling update...", sig)
		m.cancel()
	case <-m.ctx.Done():
	}
}

func (m *runManager) cleanup() {
	signal.Stop(m.sigChan)
	m.cancel()
}
