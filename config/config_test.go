package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig 写入临时配置文件并返回路径
func writeConfig(t *testing.T, content string) (path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadConfig_createsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.True(t, cfg.AdBlock.Enable)
	assert.Equal(t, DefaultEngine, cfg.AdBlock.Engine)
	assert.Equal(t, 50*datasize.MB, cfg.AdBlock.MaxListSize)
	assert.Equal(t, DefaultListenAddr, cfg.WebUI.ListenAddr)
	require.Len(t, cfg.AdBlock.Filters, 2)
	assert.True(t, cfg.AdBlock.Filters[0].Active)
	assert.False(t, cfg.AdBlock.Filters[1].Active)
}

func TestLoadConfig_defaults(t *testing.T) {
	path := writeConfig(t, `
adblock:
  enable: true
  filters:
    - uri: file:///tmp/list.txt
      active: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	ab := cfg.AdBlock
	assert.Equal(t, DefaultEngine, ab.Engine)
	assert.Equal(t, DefaultConfigDir, ab.ConfigDir)
	assert.Equal(t, DefaultCacheDir, ab.CacheDir)
	assert.Equal(t, DefaultUpdateIntervalHours, ab.UpdateIntervalHours)
	assert.Equal(t, DefaultStalenessHours, ab.StalenessHours)
	assert.Equal(t, DefaultMaxListSize, ab.MaxListSize)
	assert.Equal(t, DefaultMaxConcurrentDownloads, ab.MaxConcurrentDownloads)
	assert.Equal(t, DefaultDownloadTimeoutSeconds, ab.DownloadTimeoutSeconds)
	assert.Equal(t, DefaultMaxLineLength, ab.MaxLineLength)
	assert.Zero(t, ab.DecisionCacheSize)
	assert.Equal(t, DefaultLogLevel, cfg.System.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.System.LogFormat)
}

func TestLoadConfig_customValues(t *testing.T) {
	path := writeConfig(t, `
webui:
  listen_addr: "0.0.0.0:9090"
adblock:
  engine: urlfilter
  update_interval_hours: 0
  max_list_size: 2MB
  decision_cache_size: 1024
system:
  log_level: debug
  log_format: json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.WebUI.ListenAddr)
	assert.Equal(t, "urlfilter", cfg.AdBlock.Engine)
	assert.Zero(t, cfg.AdBlock.UpdateIntervalHours)
	assert.Equal(t, 2*datasize.MB, cfg.AdBlock.MaxListSize)
	assert.Equal(t, 1024, cfg.AdBlock.DecisionCacheSize)
	assert.Equal(t, "debug", cfg.System.LogLevel)
	assert.Equal(t, "json", cfg.System.LogFormat)
}

func TestLoadConfig_errors(t *testing.T) {
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, ErrNoConfigPath)

	path := writeConfig(t, "adblock: [")
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig(t *testing.T) {
	path := writeConfig(t, DefaultConfigContent)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	cfg.AdBlock.Filters = append(cfg.AdBlock.Filters, FilterListSource{
		URI:    "https://example.com/list.txt",
		Active: true,
	})
	cfg.AdBlock.Enable = false
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	assert.False(t, loaded.AdBlock.Enable)
	require.Len(t, loaded.AdBlock.Filters, 3)
	assert.Equal(t, "https://example.com/list.txt", loaded.AdBlock.Filters[2].URI)
	assert.Equal(t, cfg.AdBlock.MaxListSize, loaded.AdBlock.MaxListSize)

	assert.ErrorIs(t, SaveConfig("", cfg), ErrNoConfigPath)
}
