package cmd

import (
	"fmt"

	"github.com/blikvm/kvm-update/internal/config"
	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	Cfg      *config.Config
	Version  string

	rootFlags updateFlags
)

// RootCmd updates the appliance when run without a subcommand, so
// "kvm-update v1.4.2 --source gitee" keeps working for existing scripts.
var RootCmd = &cobra.Command{
	Use:   "kvm-update [version]",
	Short: "BliKVM updater - installs the latest BliKVM release",
	Long: `BliKVM updater picks the faster of the GitHub and Gitee release mirrors,
downloads the package for this board and installs it with dpkg.
Progress is recorded in a status file polled by the web UI.`,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return initConfig() },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd.Context(), rootFlags, args)
	},
}

func Execute(version string) error {
	Version = version
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, then /etc/kvm-update/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config file)")
	rootFlags.register(RootCmd)
}

func initConfig() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return usageError(fmt.Errorf("configuration could not be loaded: %w", err))
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Init(cfg.LoggerConfig("root")); err != nil {
		return usageError(fmt.Errorf("logger could not be initialized: %w", err))
	}

	Cfg = cfg
	return nil
}
