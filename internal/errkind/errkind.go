// Package errkind defines the sentinel error taxonomy shared by every
// engine. Public operations never panic or return bare strings across a
// boundary; they wrap one of these sentinels so callers can errors.Is it.
package errkind

import "errors"

var (
	// ErrInvalidParam marks a non-positive quantity/price, an out-of-range
	// leverage, an unknown option type, a past expiry, or a partial
	// close/sell that exceeds the held amount.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrInsufficientFunds marks cash below the required cost, margin, or
	// premium.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings marks a sell/close quantity short of what is held.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrNetwork marks a quote provider failure. Never mutates state.
	ErrNetwork = errors.New("network error")

	// ErrNotFound marks a missing position for the given id/ticker.
	ErrNotFound = errors.New("not found")

	// ErrInvariant marks a violated precondition (e.g. leverage change on an
	// open position).
	ErrInvariant = errors.New("invariant violation")

	// ErrPersistence marks an I/O failure on save. Propagated to the caller;
	// the operation aborts before applying in-memory effects when possible.
	ErrPersistence = errors.New("persistence error")
)
