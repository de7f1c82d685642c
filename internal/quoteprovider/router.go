package quoteprovider

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Router implements QuoteProvider by dispatching each symbol to the crypto
// or stock Provider based on its shape: a "USDT"-suffixed symbol goes to
// crypto, anything else to stock. This is the one QuoteProvider spotengine
// needs, since a single spot holding can be either asset class.
type Router struct {
	crypto QuoteProvider
	stock  QuoteProvider
	// bulkConcurrency bounds FetchQuotes fan-out, mirroring Provider's own
	// BulkConcurrency knob.
	bulkConcurrency int
}

// NewRouter wires a crypto and a stock QuoteProvider behind one interface.
func NewRouter(crypto, stock QuoteProvider, bulkConcurrency int) *Router {
	if bulkConcurrency <= 0 {
		bulkConcurrency = DefaultConfig.BulkConcurrency
	}
	return &Router{crypto: crypto, stock: stock, bulkConcurrency: bulkConcurrency}
}

func (r *Router) route(symbol string) QuoteProvider {
	if strings.HasSuffix(normalize(symbol), "USDT") {
		return r.crypto
	}
	return r.stock
}

// FetchQuote implements QuoteProvider.
func (r *Router) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	return r.route(symbol).FetchQuote(ctx, symbol)
}

// FetchQuotes implements QuoteProvider, fanning each symbol out to its
// routed provider concurrently.
func (r *Router) FetchQuotes(ctx context.Context, symbols []string) ([]Quote, error) {
	quotes := make([]Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.bulkConcurrency)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			q, err := r.FetchQuote(gctx, sym)
			if err != nil {
				quotes[i] = Quote{Symbol: normalize(sym), Price: 0}
				return nil
			}
			quotes[i] = q
			return nil
		})
	}
	_ = g.Wait()
	return quotes, nil
}

// ClearCache clears both underlying providers' caches.
func (r *Router) ClearCache() {
	r.crypto.ClearCache()
	r.stock.ClearCache()
}
