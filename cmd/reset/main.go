// Command reset wipes the engine's stores back to a fresh starting state.
// Adapted from the teacher's scripts/reset_positions, which rebuilt
// positions.json from live broker reality; there is no external broker
// here, so reset simply re-seeds every store's defaults.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/eddiefleurent/tradecore/internal/config"
	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/optionsengine"
	"github.com/eddiefleurent/tradecore/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	cash := flag.Float64("cash", config.StartingCash, "Starting cash balance for the reset ledger")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	if err := resetStores(cfg.Storage.DataDir, *cash); err != nil {
		log.Printf("%v", err)
		return 1
	}

	log.Printf("reset complete: cash=%.2f, data_dir=%s", *cash, cfg.Storage.DataDir)
	return 0
}

// resetStores re-seeds the portfolio, futures, and options stores under
// dataDir back to their defaults, with the ledger's cash set to cash.
func resetStores(dataDir string, cash float64) error {
	portfolioStore, err := store.New(filepath.Join(dataDir, "portfolio.json"), ledger.Defaults)
	if err != nil {
		return fmt.Errorf("opening portfolio store: %w", err)
	}
	futuresStore, err := store.New(filepath.Join(dataDir, "futures.json"), futuresengine.Defaults)
	if err != nil {
		return fmt.Errorf("opening futures store: %w", err)
	}
	optionsStore, err := store.New(filepath.Join(dataDir, "options.json"), optionsengine.Defaults)
	if err != nil {
		return fmt.Errorf("opening options store: %w", err)
	}

	l := ledger.New(portfolioStore)
	if err := l.Reset(cash); err != nil {
		return fmt.Errorf("resetting ledger: %w", err)
	}
	if err := futuresStore.Save(func(d *futuresengine.Data) { *d = futuresengine.Defaults() }); err != nil {
		return fmt.Errorf("resetting futures store: %w", err)
	}
	if err := optionsStore.Save(func(d *optionsengine.Data) { *d = optionsengine.Defaults() }); err != nil {
		return fmt.Errorf("resetting options store: %w", err)
	}
	return nil
}
