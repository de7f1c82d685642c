// Package monitor runs the two cooperative background loops: the
// liquidation sweep and the options expiry settler. Both drop an
// overlapping tick rather than queue it, per spec §5.
package monitor

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/margin"
	"github.com/eddiefleurent/tradecore/internal/optionsengine"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
)

// Config holds the two monitors' poll intervals, matching the teacher's
// orders.Manager Config/DefaultConfig/variadic-config idiom.
type Config struct {
	LiquidationInterval time.Duration
	SettleInterval      time.Duration
}

// DefaultConfig matches spec §6's schedule: liquidation every 10s, expiry
// settlement every hour.
var DefaultConfig = Config{
	LiquidationInterval: 10 * time.Second,
	SettleInterval:      1 * time.Hour,
}

// LiquidationMonitor sweeps open futures positions every tick, liquidating
// any whose mark has crossed its liquidation price (spec §4.6).
type LiquidationMonitor struct {
	engine  *futuresengine.Engine
	quotes  quoteprovider.QuoteProvider
	logger  *log.Logger
	config  Config
	running atomic.Bool
}

// NewLiquidationMonitor wires the monitor's dependencies. A nil logger
// falls back to a package-prefixed stderr logger, and a zero-value
// interval in config falls back to DefaultConfig.
func NewLiquidationMonitor(engine *futuresengine.Engine, quotes quoteprovider.QuoteProvider, logger *log.Logger, config ...Config) *LiquidationMonitor {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.LiquidationInterval <= 0 {
		cfg.LiquidationInterval = DefaultConfig.LiquidationInterval
	}
	if logger == nil {
		logger = log.New(os.Stderr, "monitor: ", log.LstdFlags)
	}
	return &LiquidationMonitor{engine: engine, quotes: quotes, logger: logger, config: cfg}
}

// Run blocks, ticking until ctx is canceled. Intended to be started as its
// own goroutine from the composition root.
func (m *LiquidationMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.LiquidationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *LiquidationMonitor) tick(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return // previous tick still in flight, drop this one
	}
	defer m.running.Store(false)

	positions := m.engine.Positions()
	marks := make(map[string]float64, len(positions))
	for _, ticker := range uniqueTickers(positions) {
		quote, err := m.quotes.FetchQuote(ctx, ticker)
		if err != nil {
			m.logger.Printf("liquidation monitor: quote fetch failed for %s: %v", ticker, err)
			continue // leave positions for this ticker untouched, avoid acting on stale data
		}
		marks[ticker] = quote.Price
	}

	for _, p := range positions {
		mark, ok := marks[p.Ticker]
		if !ok {
			continue
		}
		if !triggered(p, mark) {
			continue
		}
		if _, err := m.engine.LiquidatePosition(p.ID, mark); err != nil {
			m.logger.Printf("liquidation monitor: liquidating %s failed: %v", p.ID, err)
		}
	}
}

func triggered(p futuresengine.Position, mark float64) bool {
	if p.Side == margin.Long {
		return mark <= p.LiquidationPrice
	}
	return mark >= p.LiquidationPrice
}

func uniqueTickers(positions []futuresengine.Position) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range positions {
		if _, ok := seen[p.Ticker]; ok {
			continue
		}
		seen[p.Ticker] = struct{}{}
		out = append(out, p.Ticker)
	}
	return out
}

// ExpirySettler runs optionsengine.SettleExpiredOptions on a schedule.
type ExpirySettler struct {
	engine  *optionsengine.Engine
	logger  *log.Logger
	config  Config
	running atomic.Bool
}

// NewExpirySettler wires the settler's dependencies.
func NewExpirySettler(engine *optionsengine.Engine, logger *log.Logger, config ...Config) *ExpirySettler {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = DefaultConfig.SettleInterval
	}
	if logger == nil {
		logger = log.New(os.Stderr, "monitor: ", log.LstdFlags)
	}
	return &ExpirySettler{engine: engine, logger: logger, config: cfg}
}

// Run blocks, ticking until ctx is canceled.
func (s *ExpirySettler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *ExpirySettler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)
	s.engine.SettleExpiredOptions(ctx)
}
