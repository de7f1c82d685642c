package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/optionschain"
	"github.com/eddiefleurent/tradecore/internal/reconcile"
	"github.com/eddiefleurent/tradecore/internal/snapshot"
	"github.com/eddiefleurent/tradecore/internal/testsupport"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	l := testsupport.NewLedger(t)
	quotes := testsupport.NewFakeQuotes(map[string]float64{"AAPL": 150})
	snaps := snapshot.New(l, nil, nil, quotes, quotes)
	auditor := reconcile.New(l, nil, nil, nil)
	return NewServer(Config{Port: 0, AuthToken: authToken}, snaps, auditor, l, quotes, nil)
}

func TestHandleHealth_PublicAndConsistentByDefault(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/health", nil) // no token
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result reconcile.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Consistent)
}

func TestHandleSnapshot_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleSnapshot_AcceptsValidToken(t *testing.T) {
	s := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/snapshot?token=secret", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap snapshot.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Greater(t, snap.TotalEquity, 0.0)
}

func TestHandleTransactions_NoAuthWhenTokenUnset(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleChain_ReturnsStrikeLadderForKnownTicker(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/chain?ticker=AAPL", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var chain []optionschain.ExpiryChain
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chain))
	require.NotEmpty(t, chain)
	require.NotEmpty(t, chain[0].Strikes)
}

func TestHandleChain_RejectsMissingTicker(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/chain", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChain_BadGatewayWhenQuoteFails(t *testing.T) {
	s := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/chain?ticker=UNKNOWN", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
