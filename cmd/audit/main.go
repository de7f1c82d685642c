// Command audit runs the reconciliation invariant checks against the
// engine's persisted stores and prints the result. Adapted from the
// teacher's scripts/audit_positions, which diffed local storage against
// live broker positions; this module has no broker, so the audit instead
// verifies the stores' own internal invariants (spec §4.12).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/eddiefleurent/tradecore/internal/config"
	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/optionsengine"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/reconcile"
	"github.com/eddiefleurent/tradecore/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	result, err := runAudit(cfg)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Printf("failed to marshal result: %v", err)
			return 1
		}
		fmt.Println(string(out))
	} else {
		printReport(result)
	}

	if !result.Consistent {
		return 1
	}
	return 0
}

// runAudit opens the engine's stores and runs the reconciliation invariant
// checks. The checks only read; opening a store whose file is missing
// creates that file with the store's defaults.
func runAudit(cfg *config.Config) (reconcile.Result, error) {
	dataDir := cfg.Storage.DataDir
	portfolioStore, err := store.New(filepath.Join(dataDir, "portfolio.json"), ledger.Defaults)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("opening portfolio store: %w", err)
	}
	futuresStore, err := store.New(filepath.Join(dataDir, "futures.json"), futuresengine.Defaults)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("opening futures store: %w", err)
	}
	optionsStore, err := store.New(filepath.Join(dataDir, "options.json"), optionsengine.Defaults)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("opening options store: %w", err)
	}

	l := ledger.New(portfolioStore)
	logger := log.New(os.Stdout, "[audit] ", log.LstdFlags)
	cryptoQuotes := quoteprovider.New("crypto", quoteprovider.NewCryptoSource(cfg.QuoteProvider.CryptoBaseURL, nil), logger)
	stockQuotes := quoteprovider.New("stock", quoteprovider.NewStockSource(cfg.QuoteProvider.StockBaseURL, nil), logger)

	futures := futuresengine.New(futuresStore, l, cryptoQuotes, nil)
	options := optionsengine.New(optionsStore, l, stockQuotes, nil)

	auditor := reconcile.New(l, futures, options, nil)
	return auditor.Run(), nil
}

func printReport(result reconcile.Result) {
	if result.Consistent {
		fmt.Println("audit: no inconsistencies found")
		return
	}
	fmt.Printf("audit: %d inconsistenc(y/ies) found\n", len(result.Violations))
	for _, v := range result.Violations {
		fmt.Printf("  - [%s] %s\n", v.Check, v.Detail)
	}
}

