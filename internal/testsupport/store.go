package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/stretchr/testify/require"
)

// NewJSONStore opens a store.JSONStore[T] rooted at a fresh temp directory,
// collapsing the boilerplate repeated at the top of every engine's test
// file.
func NewJSONStore[T any](t *testing.T, name string, defaults func() T) *store.JSONStore[T] {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), name), defaults)
	require.NoError(t, err)
	return s
}

// NewLedger opens a fresh portfolio store and wraps it in a ledger.Ledger,
// the starting point every non-ledger engine test needs.
func NewLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(NewJSONStore(t, "portfolio.json", ledger.Defaults))
}
