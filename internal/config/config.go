package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blikvm/kvm-update/pkg/logger"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment overrides, e.g. KVM_UPDATE_PROBE_COUNT.
	EnvPrefix = "KVM_UPDATE"

	// DefaultConfigDir is searched for config.yaml after the working directory.
	DefaultConfigDir = "/etc/kvm-update"
)

// Config holds all application configuration
type Config struct {
	Logging         LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Repo            RepoConfig              `mapstructure:"repo" yaml:"repo"`
	Mirrors         map[string]MirrorConfig `mapstructure:"mirrors" yaml:"mirrors"`
	Probe           ProbeConfig             `mapstructure:"probe" yaml:"probe"`
	HTTP            HTTPConfig              `mapstructure:"http" yaml:"http"`
	Breaker         BreakerConfig           `mapstructure:"breaker" yaml:"breaker"`
	Paths           PathsConfig             `mapstructure:"paths" yaml:"paths"`
	Install         InstallConfig           `mapstructure:"install" yaml:"install"`
	BaselineVersion string                  `mapstructure:"baseline_version" yaml:"baseline_version"`
	Dependencies    []string                `mapstructure:"dependencies" yaml:"dependencies"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	Journald   bool   `mapstructure:"journald" yaml:"journald"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// RepoConfig identifies the release repository on every mirror.
type RepoConfig struct {
	Owner string `mapstructure:"owner" yaml:"owner"`
	Name  string `mapstructure:"name" yaml:"name"`
}

// MirrorConfig holds the endpoints of a single release mirror.
type MirrorConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	APIBase      string `mapstructure:"api_base" yaml:"api_base"`
	DownloadBase string `mapstructure:"download_base" yaml:"download_base"`
}

// ProbeConfig controls latency probing used for mirror selection.
type ProbeConfig struct {
	Count   int           `mapstructure:"count" yaml:"count"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HTTPConfig holds the timeouts used against mirror hosts.
type HTTPConfig struct {
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout" yaml:"metadata_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// BreakerConfig configures the per-mirror circuit breakers.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

// PathsConfig holds filesystem locations owned or read by the updater.
type PathsConfig struct {
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`
	StatusFile  string `mapstructure:"status_file" yaml:"status_file"`
	VersionFile string `mapstructure:"version_file" yaml:"version_file"`
	BoardModel  string `mapstructure:"board_model" yaml:"board_model"`
}

// InstallConfig controls package installation.
type InstallConfig struct {
	LockWait time.Duration `mapstructure:"lock_wait" yaml:"lock_wait"`
}

// setDefaults registers the default value of every key so that env
// overrides work even when no config file is present.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.journald", d.Logging.Journald)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	v.SetDefault("repo.owner", d.Repo.Owner)
	v.SetDefault("repo.name", d.Repo.Name)

	for name, m := range d.Mirrors {
		v.SetDefault("mirrors."+name+".host", m.Host)
		v.SetDefault("mirrors."+name+".api_base", m.APIBase)
		v.SetDefault("mirrors."+name+".download_base", m.DownloadBase)
	}

	v.SetDefault("probe.count", d.Probe.Count)
	v.SetDefault("probe.timeout", d.Probe.Timeout)

	v.SetDefault("http.metadata_timeout", d.HTTP.MetadataTimeout)
	v.SetDefault("http.download_timeout", d.HTTP.DownloadTimeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)

	v.SetDefault("breaker.max_failures", d.Breaker.MaxFailures)
	v.SetDefault("breaker.open_timeout", d.Breaker.OpenTimeout)

	v.SetDefault("paths.download_dir", d.Paths.DownloadDir)
	v.SetDefault("paths.status_file", d.Paths.StatusFile)
	v.SetDefault("paths.version_file", d.Paths.VersionFile)
	v.SetDefault("paths.board_model", d.Paths.BoardModel)

	v.SetDefault("install.lock_wait", d.Install.LockWait)
	v.SetDefault("baseline_version", d.BaselineVersion)
	v.SetDefault("dependencies", d.Dependencies)
}

// LoadConfig loads configuration from file. An empty path searches the
// working directory and DefaultConfigDir; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports configuration values the updater cannot work with.
func (c *Config) Validate() error {
	if c.Repo.Owner == "" || c.Repo.Name == "" {
		return fmt.Errorf("repo.owner and repo.name are required")
	}
	if c.Probe.Count < 1 {
		return fmt.Errorf("probe.count must be at least 1, got %d", c.Probe.Count)
	}
	for _, name := range []string{"github", "gitee"} {
		m, ok := c.Mirrors[name]
		if !ok {
			return fmt.Errorf("mirror %q is not configured", name)
		}
		if m.APIBase == "" || m.DownloadBase == "" {
			return fmt.Errorf("mirror %q requires api_base and download_base", name)
		}
	}
	if c.Paths.DownloadDir == "" || c.Paths.StatusFile == "" {
		return fmt.Errorf("paths.download_dir and paths.status_file are required")
	}
	return nil
}

// LoggerConfig converts the logging section into a logger.Config.
func (c *Config) LoggerConfig(module string) logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Module:     module,
		File:       c.Logging.File,
		Journald:   c.Logging.Journald,
		MaxSize:    c.Logging.MaxSize,
		MaxAge:     c.Logging.MaxAge,
		MaxBackups: c.Logging.MaxBackups,
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "/var/log/kvm-update.log",
			Journald:   true,
			MaxSize:    5,
			MaxAge:     30,
			MaxBackups: 3,
		},
		Repo: RepoConfig{
			Owner: "blikvm",
			Name:  "blikvm",
		},
		Mirrors: map[string]MirrorConfig{
			"github": {
				Host:         "github.com",
				APIBase:      "https://api.github.com",
				DownloadBase: "https://github.com",
			},
			"gitee": {
				Host:         "gitee.com",
				APIBase:      "https://gitee.com/api/v5",
				DownloadBase: "https://gitee.com",
			},
		},
		Probe: ProbeConfig{
			Count:   3,
			Timeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			MetadataTimeout: 10 * time.Second,
			DownloadTimeout: 20 * time.Second,
			UserAgent:       "blikvm-updater/1.0",
		},
		Breaker: BreakerConfig{
			MaxFailures: 2,
			OpenTimeout: 60 * time.Second,
		},
		Paths: PathsConfig{
			DownloadDir: "/tmp/kvm_update",
			StatusFile:  "/tmp/kvm_update/update_status.json",
			VersionFile: "/usr/bin/blikvm/package.json",
			BoardModel:  "/proc/device-tree/model",
		},
		Install: InstallConfig{
			LockWait: 60 * time.Second,
		},
		BaselineVersion: "v1.0.0",
		Dependencies:    []string{"libconfig-dev", "jq", "libxkbcommon0", "libgpiod-dev"},
	}
}
