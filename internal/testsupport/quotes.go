// Package testsupport provides deterministic test doubles shared across the
// engine's package tests, grounded on the teacher's internal/mock data
// provider and internal/storage mock (deterministic RNG toggle, call
// counters, injectable errors) but reshaped around quoteprovider.QuoteProvider
// instead of a single-symbol options chain.
package testsupport

import (
	"context"
	"sync"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
)

// FakeQuotes is an in-memory quoteprovider.QuoteProvider with no network
// calls and no cache TTL. Missing symbols return errkind.ErrNetwork, matching
// how the real provider surfaces an upstream miss.
type FakeQuotes struct {
	mu            sync.Mutex
	prices        map[string]float64
	fetchCount    int
	forcedErr     error
	forcedErrOnly string // if set, forcedErr only applies to this symbol
}

// NewFakeQuotes returns a FakeQuotes seeded with the given symbol->price map.
// A nil map starts empty; use SetPrice to populate it incrementally.
func NewFakeQuotes(prices map[string]float64) *FakeQuotes {
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &FakeQuotes{prices: prices}
}

// SetPrice sets or updates the price for symbol.
func (f *FakeQuotes) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

// FailSymbol makes FetchQuote/FetchQuotes return err for symbol only. Pass an
// empty symbol to fail every lookup.
func (f *FakeQuotes) FailSymbol(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forcedErrOnly = symbol
	f.forcedErr = err
}

// FetchCount reports how many times FetchQuote has been called, for tests
// asserting on cache/dedup behavior upstream of this double.
func (f *FakeQuotes) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

// FetchQuote implements quoteprovider.QuoteProvider.
func (f *FakeQuotes) FetchQuote(_ context.Context, symbol string) (quoteprovider.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++

	if f.forcedErr != nil && (f.forcedErrOnly == "" || f.forcedErrOnly == symbol) {
		return quoteprovider.Quote{}, f.forcedErr
	}
	price, ok := f.prices[symbol]
	if !ok {
		return quoteprovider.Quote{}, errkind.ErrNetwork
	}
	return quoteprovider.Quote{Symbol: symbol, Price: price}, nil
}

// FetchQuotes implements quoteprovider.QuoteProvider by fetching each symbol
// independently; a per-symbol failure yields a zero-value Quote at that index
// rather than aborting the batch, matching the real provider's best-effort
// bulk semantics.
func (f *FakeQuotes) FetchQuotes(ctx context.Context, symbols []string) ([]quoteprovider.Quote, error) {
	out := make([]quoteprovider.Quote, len(symbols))
	for i, s := range symbols {
		q, err := f.FetchQuote(ctx, s)
		if err != nil {
			out[i] = quoteprovider.Quote{Symbol: s}
			continue
		}
		out[i] = q
	}
	return out, nil
}

// ClearCache is a no-op; FakeQuotes has no cache to clear.
func (f *FakeQuotes) ClearCache() {}
