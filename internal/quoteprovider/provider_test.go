package quoteprovider

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	price float64
	err   error
}

func (f *fakeSource) Fetch(ctx context.Context, symbol string) (float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

func TestFetchQuote_NormalizesAndCaches(t *testing.T) {
	src := &fakeSource{price: 42}
	p := New("test", src, nil)

	q, err := p.FetchQuote(context.Background(), "btcusdt")
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", q.Symbol)
	require.Equal(t, 42.0, q.Price)

	_, err = p.FetchQuote(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, int32(1), src.calls.Load()) // second call served from cache
}

func TestFetchQuote_ErrorWrapsNetworkKind(t *testing.T) {
	src := &fakeSource{err: require.AnError}
	p := New("test", src, nil)

	_, err := p.FetchQuote(context.Background(), "AAPL")
	require.ErrorIs(t, err, errkind.ErrNetwork)
}

func TestFetchQuotes_IndividualFailureYieldsZeroNotBatchFailure(t *testing.T) {
	src := &fakeSource{err: require.AnError}
	p := New("test", src, nil)

	quotes, err := p.FetchQuotes(context.Background(), []string{"AAPL", "NVDA"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	for _, q := range quotes {
		require.Equal(t, 0.0, q.Price)
	}
}

func TestClearCache_ForcesRefetch(t *testing.T) {
	src := &fakeSource{price: 10}
	p := New("test", src, nil)

	_, err := p.FetchQuote(context.Background(), "ETH")
	require.NoError(t, err)
	p.ClearCache()
	_, err = p.FetchQuote(context.Background(), "ETH")
	require.NoError(t, err)
	require.Equal(t, int32(2), src.calls.Load())
}
