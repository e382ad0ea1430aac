package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.Probe.Count)
	require.Equal(t, "v1.0.0", cfg.BaselineVersion)
	require.Equal(t, "https://gitee.com/api/v5", cfg.Mirrors["gitee"].APIBase)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
probe:
  count: 5
  timeout: 3s
mirrors:
  github:
    api_base: http://127.0.0.1:9000
paths:
  download_dir: /var/tmp/kvm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 5, cfg.Probe.Count)
	require.Equal(t, 3*time.Second, cfg.Probe.Timeout)
	require.Equal(t, "http://127.0.0.1:9000", cfg.Mirrors["github"].APIBase)
	// untouched keys keep their defaults
	require.Equal(t, "https://github.com", cfg.Mirrors["github"].DownloadBase)
	require.Equal(t, "/var/tmp/kvm", cfg.Paths.DownloadDir)
	require.Equal(t, "/tmp/kvm_update/update_status.json", cfg.Paths.StatusFile)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("KVM_UPDATE_PROBE_COUNT", "7")
	t.Setenv("KVM_UPDATE_BASELINE_VERSION", "v0.9.0")

	cfg, err := loadFromDir(t, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Probe.Count)
	require.Equal(t, "v0.9.0", cfg.BaselineVersion)
}

func TestLoadConfigRejectsZeroProbeCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("probe:\n  count: 0\n"), 0644))

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "probe.count")
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	lc := cfg.LoggerConfig("updater")
	require.Equal(t, "updater", lc.Module)
	require.Equal(t, cfg.Logging.File, lc.File)
	require.True(t, lc.Journald)
}

// loadFromDir runs LoadConfig with the search path rooted at dir.
func loadFromDir(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return LoadConfig("")
}
