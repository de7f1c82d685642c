// Command liquidate is the operator's panic button: it closes every open
// spot holding, futures position, and options position at the current
// market price. Adapted from the teacher's scripts/liquidate_positions.go,
// which did the same thing against a live broker; here every fill is
// simulated against this engine's own stores.
package main

import (
	"bufio"
	"context"
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
	"github.com/eddiefleurent/tradecore/internal/spotengine"
	"github.com/eddiefleurent/tradecore/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	yes := flag.Bool("yes", false, "Skip confirmation prompt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	if !*yes && !confirm() {
		log.Println("aborted")
		return 1
	}

	logger := log.New(os.Stdout, "[liquidate] ", log.LstdFlags)
	closed, err := liquidateAll(context.Background(), cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	logger.Printf("closed %d position(s)", closed)
	return 0
}

// liquidateAll closes every open spot holding, futures position, and
// options position at the current market price.
func liquidateAll(ctx context.Context, cfg *config.Config, logger *log.Logger) (int, error) {
	portfolioStore, err := store.New(filepath.Join(cfg.Storage.DataDir, "portfolio.json"), ledger.Defaults)
	if err != nil {
		return 0, fmt.Errorf("opening portfolio store: %w", err)
	}
	futuresStore, err := store.New(filepath.Join(cfg.Storage.DataDir, "futures.json"), futuresengine.Defaults)
	if err != nil {
		return 0, fmt.Errorf("opening futures store: %w", err)
	}
	optionsStore, err := store.New(filepath.Join(cfg.Storage.DataDir, "options.json"), optionsengine.Defaults)
	if err != nil {
		return 0, fmt.Errorf("opening options store: %w", err)
	}

	l := ledger.New(portfolioStore)
	cryptoQuotes := quoteprovider.New("crypto", quoteprovider.NewCryptoSource(cfg.QuoteProvider.CryptoBaseURL, nil), logger)
	stockQuotes := quoteprovider.New("stock", quoteprovider.NewStockSource(cfg.QuoteProvider.StockBaseURL, nil), logger)
	router := quoteprovider.NewRouter(cryptoQuotes, stockQuotes, cfg.QuoteProvider.BulkConcurrency)

	spot := spotengine.New(l, router)
	futures := futuresengine.New(futuresStore, l, cryptoQuotes, nil)
	options := optionsengine.New(optionsStore, l, stockQuotes, nil)

	closed := 0
	for ticker, holding := range l.Holdings() {
		assetType := ledger.AssetTypeCrypto
		if holding.AssetClass == ledger.AssetUSStockSpot {
			assetType = ledger.AssetTypeStock
		}
		if _, err := spot.ExecuteSell(ctx, ticker, holding.Quantity, "panic liquidation", &assetType); err != nil {
			logger.Printf("failed to close spot holding %s: %v", ticker, err)
			continue
		}
		closed++
	}

	for _, pos := range futures.GetPositions(ctx) {
		if _, err := futures.ClosePosition(ctx, pos.ID, nil); err != nil {
			logger.Printf("failed to close futures position %s: %v", pos.ID, err)
			continue
		}
		closed++
	}

	for _, pos := range options.GetPositions(ctx) {
		if _, err := options.SellOption(ctx, pos.ID, nil); err != nil {
			logger.Printf("failed to close options position %s: %v", pos.ID, err)
			continue
		}
		closed++
	}

	return closed, nil
}

func confirm() bool {
	fmt.Print("This will close every open position. Continue? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return answer == "y\n" || answer == "Y\n" || answer == "yes\n"
}
