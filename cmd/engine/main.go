// Package main is the entry point for the trading engine daemon: it loads
// config, wires the stores, ledger, engines, background monitors and
// dashboard, then blocks until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/eddiefleurent/tradecore/internal/broadcast"
	"github.com/eddiefleurent/tradecore/internal/config"
	"github.com/eddiefleurent/tradecore/internal/dashboard"
	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/monitor"
	"github.com/eddiefleurent/tradecore/internal/optionsengine"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/reconcile"
	"github.com/eddiefleurent/tradecore/internal/snapshot"
	"github.com/eddiefleurent/tradecore/internal/spotengine"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/sirupsen/logrus"
)

// Engine holds every wired component the daemon runs until shutdown.
type Engine struct {
	logger     *log.Logger
	dashLogger *logrus.Logger
	ledger     *ledger.Ledger
	futures    *futuresengine.Engine
	options    *optionsengine.Engine
	spot       *spotengine.Engine
	auditor    *reconcile.Auditor
	snapshots  *snapshot.Aggregator
	liquidator *monitor.LiquidationMonitor
	settler    *monitor.ExpirySettler
	dashServer *dashboard.Server
}

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags)
	logger.Printf("starting in %s mode", cfg.Environment.Mode)

	eng, err := wire(cfg, logger)
	if err != nil {
		logger.Printf("failed to wire engine: %v", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping engine...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.liquidator.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.settler.Run(ctx)
	}()

	if eng.dashServer != nil {
		go func() {
			if err := eng.dashServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Printf("dashboard server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := eng.dashServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("dashboard shutdown error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logger.Println("engine stopped")
	return 0
}

// wire builds every component from cfg. Split out from run for testability.
func wire(cfg *config.Config, logger *log.Logger) (*Engine, error) {
	dashLogger := logrus.New()
	dashLogger.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		dashLogger.SetLevel(lvl)
	} else {
		dashLogger.SetLevel(logrus.InfoLevel)
	}

	dataDir := cfg.Storage.DataDir
	portfolioStore, err := store.New(filepath.Join(dataDir, "portfolio.json"), ledger.Defaults)
	if err != nil {
		return nil, err
	}
	futuresStore, err := store.New(filepath.Join(dataDir, "futures.json"), futuresengine.Defaults)
	if err != nil {
		return nil, err
	}
	optionsStore, err := store.New(filepath.Join(dataDir, "options.json"), optionsengine.Defaults)
	if err != nil {
		return nil, err
	}

	l := ledger.New(portfolioStore)
	bcast := broadcast.NewLogger(dashLogger)

	qpConfig := quoteprovider.Config{
		CacheTTL:            cfg.QuoteProvider.CacheTTL,
		BulkConcurrency:     cfg.QuoteProvider.BulkConcurrency,
		BreakerTimeout:      cfg.QuoteProvider.BreakerTimeout,
		BreakerFailureRatio: cfg.QuoteProvider.BreakerFailureRatio,
	}
	cryptoQuotes := quoteprovider.New("crypto", quoteprovider.NewCryptoSource(cfg.QuoteProvider.CryptoBaseURL, nil), logger, qpConfig)
	stockQuotes := quoteprovider.New("stock", quoteprovider.NewStockSource(cfg.QuoteProvider.StockBaseURL, nil), logger, qpConfig)
	router := quoteprovider.NewRouter(cryptoQuotes, stockQuotes, cfg.QuoteProvider.BulkConcurrency)

	futures := futuresengine.New(futuresStore, l, cryptoQuotes, bcast)
	options := optionsengine.New(optionsStore, l, stockQuotes, bcast)
	spot := spotengine.New(l, router)

	auditor := reconcile.New(l, futures, options, dashLogger)
	snapshots := snapshot.New(l, futures, options, cryptoQuotes, stockQuotes)

	liquidator := monitor.NewLiquidationMonitor(futures, cryptoQuotes, logger, monitor.Config{
		LiquidationInterval: cfg.Monitor.LiquidationInterval,
		SettleInterval:      cfg.Monitor.SettleInterval,
	})
	settler := monitor.NewExpirySettler(options, logger, monitor.Config{
		LiquidationInterval: cfg.Monitor.LiquidationInterval,
		SettleInterval:      cfg.Monitor.SettleInterval,
	})

	eng := &Engine{
		logger:     logger,
		dashLogger: dashLogger,
		ledger:     l,
		futures:    futures,
		options:    options,
		spot:       spot,
		auditor:    auditor,
		snapshots:  snapshots,
		liquidator: liquidator,
		settler:    settler,
	}

	if cfg.Dashboard.Enabled {
		eng.dashServer = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, snapshots, auditor, l, stockQuotes, dashLogger)
	}

	if result := auditor.Run(); !result.Consistent {
		logger.Printf("startup reconciliation found %d violation(s)", len(result.Violations))
	}

	return eng, nil
}
