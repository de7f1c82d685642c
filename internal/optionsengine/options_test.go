package optionsengine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/optionspricing"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newTestQuotes(prices map[string]float64) *fakeQuotes {
	return &fakeQuotes{prices: prices}
}

func (f *fakeQuotes) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeQuotes) FetchQuote(ctx context.Context, symbol string) (quoteprovider.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[symbol]
	if !ok {
		return quoteprovider.Quote{}, errkind.ErrNetwork
	}
	return quoteprovider.Quote{Symbol: symbol, Price: price}, nil
}

func (f *fakeQuotes) FetchQuotes(ctx context.Context, symbols []string) ([]quoteprovider.Quote, error) {
	out := make([]quoteprovider.Quote, len(symbols))
	for i, s := range symbols {
		q, _ := f.FetchQuote(ctx, s)
		out[i] = q
	}
	return out, nil
}

func (f *fakeQuotes) ClearCache() {}

func newEngine(t *testing.T, prices map[string]float64, now time.Time) (*Engine, *ledger.Ledger, *fakeQuotes) {
	t.Helper()
	os, err := store.New(filepath.Join(t.TempDir(), "options.json"), Defaults)
	require.NoError(t, err)
	ps, err := store.New(filepath.Join(t.TempDir(), "portfolio.json"), ledger.Defaults)
	require.NoError(t, err)
	l := ledger.New(ps)
	q := newTestQuotes(prices)
	e := New(os, l, q, nil)
	e.now = func() time.Time { return now }
	return e, l, q
}

func TestBuyOption_DebitsTotalPremium(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, l, _ := newEngine(t, map[string]float64{"AAPL": 150}, now)

	res, err := e.BuyOption(context.Background(), "aapl", optionspricing.Call, 150, "2026-06-19", 2)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Less(t, l.Cash(), 100_000.0)

	positions := e.GetPositions(context.Background())
	require.Len(t, positions, 1)
	require.Equal(t, "AAPL", positions[0].Contract.Underlying)
}

func TestBuyOption_RejectsPastExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, _, _ := newEngine(t, map[string]float64{"AAPL": 150}, now)

	_, err := e.BuyOption(context.Background(), "AAPL", optionspricing.Call, 150, "2020-01-01", 1)
	require.ErrorIs(t, err, errkind.ErrInvalidParam)
}

func TestBuyOption_InsufficientFunds(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, _, _ := newEngine(t, map[string]float64{"AAPL": 150}, now)

	_, err := e.BuyOption(context.Background(), "AAPL", optionspricing.Call, 150, "2026-06-19", 1_000_000)
	require.ErrorIs(t, err, errkind.ErrInsufficientFunds)
}

func TestSellOption_FullSellRemovesPosition(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, l, q := newEngine(t, map[string]float64{"AAPL": 150}, now)

	_, err := e.BuyOption(context.Background(), "AAPL", optionspricing.Call, 150, "2026-06-19", 1)
	require.NoError(t, err)
	cashAfterBuy := l.Cash()

	q.setPrice("AAPL", 160)
	positions := e.GetPositions(context.Background())
	id := positions[0].ID

	res, err := e.SellOption(context.Background(), id, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Greater(t, l.Cash(), cashAfterBuy)
	require.Empty(t, e.GetPositions(context.Background()))
}

func TestSettleExpiredOptions_ITMCreditsCashAndRemovesPosition(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, l, q := newEngine(t, map[string]float64{"NVDA": 900}, now)

	_, err := e.BuyOption(context.Background(), "NVDA", optionspricing.Call, 750, "2026-03-11", 2)
	require.NoError(t, err)
	cashAfterBuy := l.Cash()

	q.setPrice("NVDA", 800)
	e.now = func() time.Time { return now.AddDate(0, 0, 2) } // past expiry
	e.SettleExpiredOptions(context.Background())

	require.Greater(t, l.Cash(), cashAfterBuy)
	require.Empty(t, e.GetPositions(context.Background()))
}

func TestSettleExpiredOptions_OTMDropsPositionWithoutCredit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, l, q := newEngine(t, map[string]float64{"NVDA": 900}, now)

	_, err := e.BuyOption(context.Background(), "NVDA", optionspricing.Call, 950, "2026-03-11", 1)
	require.NoError(t, err)
	cashAfterBuy := l.Cash()

	q.setPrice("NVDA", 800) // well below strike: OTM
	e.now = func() time.Time { return now.AddDate(0, 0, 2) }
	e.SettleExpiredOptions(context.Background())

	require.Equal(t, cashAfterBuy, l.Cash())
	require.Empty(t, e.GetPositions(context.Background()))
}

func TestPositions_ReturnsRawSnapshotWithoutRefreshing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, _, q := newEngine(t, map[string]float64{"AAPL": 150}, now)

	_, err := e.BuyOption(context.Background(), "AAPL", optionspricing.Call, 150, "2026-06-19", 1)
	require.NoError(t, err)
	raw := e.Positions()
	require.Len(t, raw, 1)
	premiumAtOpen := raw[0].CurrentPremium

	q.setPrice("AAPL", 200) // moves the underlying after opening
	raw = e.Positions()
	require.Len(t, raw, 1)
	require.Equal(t, premiumAtOpen, raw[0].CurrentPremium) // never refreshed, unlike GetPositions
}

func TestGetQuote_ExpiredOTMContractIsZero(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e, _, _ := newEngine(t, map[string]float64{"AAPL": 100}, now)

	q, err := e.GetQuote(context.Background(), "AAPL", optionspricing.Call, 110, "2020-01-01")
	require.NoError(t, err)
	require.Equal(t, 0.0, q.PremiumPerShare)
	require.Equal(t, 0.0, q.DaysToExpiry)
}
