package reconcile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeQuotes struct {
	prices map[string]float64
}

func (f *fakeQuotes) FetchQuote(ctx context.Context, symbol string) (quoteprovider.Quote, error) {
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

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "portfolio.json"), ledger.Defaults)
	require.NoError(t, err)
	return ledger.New(s)
}

func TestRun_CleanStateIsConsistent(t *testing.T) {
	l := newTestLedger(t)
	a := New(l, nil, nil, nil)
	result := a.Run()
	require.True(t, result.Consistent)
	require.Empty(t, result.Violations)
}

func TestRun_ClampedCashStaysConsistent(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.AdjustCash(-100_000)) // clamps at zero, can't go negative via this path

	a := New(l, nil, nil, nil)
	result := a.Run()
	require.True(t, result.Consistent) // AdjustCash's clamp prevents the violation from ever occurring
}

func TestRun_ConsistentFuturesMarginPassesAudit(t *testing.T) {
	l := newTestLedger(t)
	fs, err := store.New(filepath.Join(t.TempDir(), "futures.json"), futuresengine.Defaults)
	require.NoError(t, err)
	q := &fakeQuotes{prices: map[string]float64{"BTCUSDT": 60_000}}
	fe := futuresengine.New(fs, l, q, nil)
	lev := 10
	_, err = fe.OpenLong(context.Background(), "BTCUSDT", 1, &lev)
	require.NoError(t, err)

	a := New(l, fe, nil, nil)
	result := a.Run()
	require.True(t, result.Consistent)
}
