package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 1.0, cfg.Ledger.MinChangePercent)
	assert.Equal(t, 20.0, cfg.Ledger.MarginThreshold)
	assert.Equal(t, 30, cfg.Market.WindowDays)
	assert.Equal(t, 30.0, cfg.Strategy.TargetMargin)
	assert.Equal(t, 24, cfg.Adjust.ExpiryHours)
	assert.Equal(t, 0.5, cfg.Adjust.Confidence.Base)
}

func TestLoadEmptyPathKeepsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/podprice
server:
  port: 9090
ledger:
  min_change_percent: 2.5
adjust:
  expiry_hours: 48
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/podprice", cfg.DataDir)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Ledger.MinChangePercent)
	assert.Equal(t, 48, cfg.Adjust.ExpiryHours)

	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20.0, cfg.Ledger.MarginThreshold)
	assert.Equal(t, 30.0, cfg.Strategy.TargetMargin)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
