package quoteprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// quoteResponse is the minimal shape expected back from an HTTP quote
// vendor: {"symbol": "...", "price": 123.45}.
type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// httpSource fetches a single quote from a configurable base URL. It
// implements Source for both concrete providers below; the specific vendor
// contract is out of scope (spec §1), so this is a generic JSON quote
// fetcher an operator points at whichever endpoint they run.
type httpSource struct {
	baseURL string
	client  *http.Client
}

func newHTTPSource(baseURL string, client *http.Client) httpSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return httpSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (h httpSource) fetch(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s", h.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("building quote request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote vendor returned status %d", resp.StatusCode)
	}

	var payload quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decoding quote response: %w", err)
	}
	return payload.Price, nil
}

// CryptoSource fetches prices for symbols of the form BASEQUOTE (e.g.
// BTCUSDT).
type CryptoSource struct {
	http httpSource
}

// NewCryptoSource builds a crypto quote source against baseURL. A nil
// client uses a 5s-timeout default.
func NewCryptoSource(baseURL string, client *http.Client) *CryptoSource {
	return &CryptoSource{http: newHTTPSource(baseURL, client)}
}

// Fetch implements Source.
func (c *CryptoSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	return c.http.fetch(ctx, symbol)
}

// StockSource fetches prices for bare equity tickers.
type StockSource struct {
	http httpSource
}

// NewStockSource builds a stock quote source against baseURL.
func NewStockSource(baseURL string, client *http.Client) *StockSource {
	return &StockSource{http: newHTTPSource(baseURL, client)}
}

// Fetch implements Source.
func (s *StockSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	return s.http.fetch(ctx, symbol)
}
