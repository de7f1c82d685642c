// Package quoteprovider implements the QuoteProvider capability (spec
// §4.1): a short-TTL cache in front of a pluggable Source, with a circuit
// breaker guarding the underlying fetch and request de-duplication for
// concurrent misses on the same symbol.
package quoteprovider

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Quote is a single priced symbol.
type Quote struct {
	Symbol string
	Price  float64
}

// Source fetches a single symbol's price from one upstream (crypto
// exchange, stock data vendor, …). Sources do not cache — that's the
// Provider's job. Neither a Source nor the Provider retries a failed fetch.
type Source interface {
	Fetch(ctx context.Context, symbol string) (float64, error)
}

// QuoteProvider is the capability engines depend on.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
	FetchQuotes(ctx context.Context, symbols []string) ([]Quote, error)
	ClearCache()
}

// Config tunes the cache and breaker. Zero-value fields fall back to
// DefaultConfig, matching the teacher's retry.Client variadic-config idiom.
type Config struct {
	CacheTTL            time.Duration
	BulkConcurrency     int
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64
}

// DefaultConfig matches spec §4.1's 30s cache TTL plus conservative
// breaker defaults for an external quote vendor.
var DefaultConfig = Config{
	CacheTTL:            30 * time.Second,
	BulkConcurrency:     8,
	BreakerMaxRequests:  3,
	BreakerInterval:     60 * time.Second,
	BreakerTimeout:      30 * time.Second,
	BreakerFailureRatio: 0.6,
}

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// Provider wraps a Source with caching, a circuit breaker, and bulk-fetch
// fan-out.
type Provider struct {
	source  Source
	config  Config
	logger  *log.Logger
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New wraps source with the given name (used in breaker/log identification)
// and optional config override.
func New(name string, source Source, logger *log.Logger, config ...Config) *Provider {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig.CacheTTL
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = DefaultConfig.BulkConcurrency
	}
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = DefaultConfig.BreakerMaxRequests
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = DefaultConfig.BreakerInterval
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultConfig.BreakerTimeout
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = DefaultConfig.BreakerFailureRatio
	}
	if logger == nil {
		logger = log.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Printf("quoteprovider[%s]: circuit breaker %s -> %s", name, from, to)
		},
	})

	return &Provider{
		source:  source,
		config:  cfg,
		logger:  logger,
		breaker: breaker,
		cache:   make(map[string]cacheEntry),
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FetchQuote returns symbol's cached price if fresh, otherwise fetches
// through the circuit breaker, de-duplicating concurrent misses for the
// same symbol via singleflight.
func (p *Provider) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	sym := normalize(symbol)

	if price, ok := p.cached(sym); ok {
		return Quote{Symbol: sym, Price: price}, nil
	}

	v, err, _ := p.group.Do(sym, func() (interface{}, error) {
		if price, ok := p.cached(sym); ok {
			return price, nil
		}
		result, breakerErr := p.breaker.Execute(func() (interface{}, error) {
			return p.source.Fetch(ctx, sym)
		})
		if breakerErr != nil {
			return nil, breakerErr
		}
		price := result.(float64)
		p.store(sym, price)
		return price, nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: fetching quote for %s: %v", errkind.ErrNetwork, sym, err)
	}
	return Quote{Symbol: sym, Price: v.(float64)}, nil
}

// FetchQuotes fetches symbols concurrently (bounded by BulkConcurrency). A
// per-symbol failure yields price=0 for that symbol without failing the
// batch.
func (p *Provider) FetchQuotes(ctx context.Context, symbols []string) ([]Quote, error) {
	quotes := make([]Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.BulkConcurrency)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			q, err := p.FetchQuote(gctx, sym)
			if err != nil {
				quotes[i] = Quote{Symbol: normalize(sym), Price: 0}
				return nil
			}
			quotes[i] = q
			return nil
		})
	}
	// errgroup's Wait error is always nil here since per-symbol failures are
	// swallowed above; bulk fetch itself never fails.
	_ = g.Wait()
	return quotes, nil
}

// ClearCache empties the quote cache.
func (p *Provider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]cacheEntry)
}

func (p *Provider) cached(symbol string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.cache[symbol]
	if !ok || time.Since(entry.fetchedAt) > p.config.CacheTTL {
		return 0, false
	}
	return entry.price, true
}

func (p *Provider) store(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[symbol] = cacheEntry{price: price, fetchedAt: time.Now()}
}
