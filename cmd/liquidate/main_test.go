package main

import (
	"context"
	"log"
	"os"
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

func TestLiquidateAll_SkipsHoldingWhenQuoteUnreachable(t *testing.T) {
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "portfolio.json"), ledger.Defaults)
	require.NoError(t, err)
	l := ledger.New(s)
	_, err = l.BuySpot("AAPL", 2, 150, "test seed", ledger.AssetTypeStock)
	require.NoError(t, err)

	// No quote vendor base URL is configured, so the fetch fails and the
	// holding is left open rather than closed at a bad price.
	cfg := testConfig(t, dir)
	closed, err := liquidateAll(context.Background(), cfg, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	require.Equal(t, 0, closed)

	reopened, err := store.New(filepath.Join(dir, "portfolio.json"), ledger.Defaults)
	require.NoError(t, err)
	require.NotEmpty(t, ledger.New(reopened).Holdings())
}

func TestLiquidateAll_NoOpOnEmptyPortfolio(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	closed, err := liquidateAll(context.Background(), cfg, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	require.Equal(t, 0, closed)
}
