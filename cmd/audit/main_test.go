package main

import (
	"path/filepath"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/config"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.DataDir = dataDir
	cfg.Normalize()
	return cfg
}

func TestRunAudit_CleanStoreIsConsistent(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	result, err := runAudit(cfg)
	require.NoError(t, err)
	require.True(t, result.Consistent)
	require.Empty(t, result.Violations)
}

func TestRunAudit_ClampedCashStaysConsistent(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "portfolio.json"), ledger.Defaults)
	require.NoError(t, err)
	l := ledger.New(s)
	require.NoError(t, l.AdjustCash(-1_000_000))

	cfg := testConfig(t, dir)
	result, err := runAudit(cfg)
	require.NoError(t, err)
	require.True(t, result.Consistent) // AdjustCash clamps at zero, can't go negative via this path
}
