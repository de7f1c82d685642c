package main

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/config"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Environment.Mode = "paper"
	cfg.Environment.LogLevel = "info"
	cfg.Storage.DataDir = dataDir
	cfg.Normalize()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestWire_BuildsEveryComponentWithoutDashboard(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	logger := log.New(os.Stderr, "", 0)

	eng, err := wire(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, eng.ledger)
	require.NotNil(t, eng.futures)
	require.NotNil(t, eng.options)
	require.NotNil(t, eng.spot)
	require.NotNil(t, eng.liquidator)
	require.NotNil(t, eng.settler)
	require.Nil(t, eng.dashServer)
}

func TestWire_BuildsDashboardWhenEnabled(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Port = 0

	eng, err := wire(cfg, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	require.NotNil(t, eng.dashServer)
}

func TestWire_CreatesStoresUnderDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)

	_, err := wire(cfg, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "portfolio.json"))
	require.FileExists(t, filepath.Join(dir, "futures.json"))
	require.FileExists(t, filepath.Join(dir, "options.json"))
}
