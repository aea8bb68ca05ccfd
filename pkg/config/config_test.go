package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  name: radar
screener:
  base_url: http://screener:5000/api/v1
  timeout: 10s
  single_limit: 50
database:
  driver: postgres
  dsn: host=db user=radar
monitor:
  schedule: "@every 1m"
`), 0o644))

	t.Setenv("API_PORT", "9090")
	t.Setenv("SMTP_ENABLED", "true")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "radar", cfg.App.Name)
	assert.Equal(t, "http://screener:5000/api/v1", cfg.Screener.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Screener.Timeout)
	assert.Equal(t, 50, cfg.Screener.SingleLimit)
	assert.Equal(t, 600, cfg.Screener.CombinedLimit, "defaults survive a partial file")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "@every 1m", cfg.Monitor.Schedule)
	assert.Equal(t, "9090", cfg.API.Port)
	assert.True(t, cfg.SMTP.Enabled)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "1y", cfg.Screener.Period)
	assert.True(t, cfg.Monitor.Enabled)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("SCREENER_TIMEOUT", "soon")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "SCREENER_TIMEOUT")
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, "configs/prod/app.yaml", GetDefaultConfigPath())

	t.Setenv("CONFIG_PATH", "/etc/radar.yaml")
	assert.Equal(t, "/etc/radar.yaml", GetDefaultConfigPath())
}
