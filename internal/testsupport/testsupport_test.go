package testsupport

import (
	"context"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/stretchr/testify/require"
)

func TestFakeQuotes_FetchQuoteReturnsSeededPrice(t *testing.T) {
	q := NewFakeQuotes(map[string]float64{"AAPL": 150})
	quote, err := q.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 150.0, quote.Price)
	require.Equal(t, 1, q.FetchCount())
}

func TestFakeQuotes_MissingSymbolReturnsNetworkError(t *testing.T) {
	q := NewFakeQuotes(nil)
	_, err := q.FetchQuote(context.Background(), "NOPE")
	require.ErrorIs(t, err, errkind.ErrNetwork)
}

func TestFakeQuotes_FailSymbolForcesError(t *testing.T) {
	q := NewFakeQuotes(map[string]float64{"BTCUSDT": 60_000})
	q.FailSymbol("BTCUSDT", errkind.ErrNetwork)
	_, err := q.FetchQuote(context.Background(), "BTCUSDT")
	require.ErrorIs(t, err, errkind.ErrNetwork)
}

func TestFakeQuotes_FetchQuotesIsBestEffort(t *testing.T) {
	q := NewFakeQuotes(map[string]float64{"AAPL": 150})
	quotes, err := q.FetchQuotes(context.Background(), []string{"AAPL", "MISSING"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, 150.0, quotes[0].Price)
	require.Equal(t, 0.0, quotes[1].Price)
}

func TestNewLedger_StartsWithDefaultCash(t *testing.T) {
	l := NewLedger(t)
	require.Greater(t, l.Cash(), 0.0)
}
