// Package reconcile audits cross-aggregate invariants across the three
// persisted stores (portfolio, futures, options) at process start. Unlike the teacher's reconciler (which
// diffs broker-reported positions against local storage), there is no
// external broker here, so the responsibility narrows to a local invariant
// check: read everything, verify, log violations, never silently fix them.
package reconcile

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/margin"
	"github.com/eddiefleurent/tradecore/internal/optionsengine"
	"github.com/sirupsen/logrus"
)

const initialMarginTolerance = 1e-6

// Violation describes one failed invariant.
type Violation struct {
	Check   string `json:"check"`
	Detail  string `json:"detail"`
}

// Result is the reconciliation outcome, exposed verbatim on the dashboard's
// /health endpoint.
type Result struct {
	Consistent bool        `json:"consistent"`
	Violations []Violation `json:"violations"`
}

// Auditor runs the startup invariant audit over the portfolio ledger and
// the futures/options aggregates.
type Auditor struct {
	ledger  *ledger.Ledger
	futures *futuresengine.Engine
	options *optionsengine.Engine
	logger  *logrus.Logger
}

// New wires the auditor's dependencies. futures/options may be nil if those
// product lines are disabled. A nil logger falls back to logrus's standard
// instance.
func New(l *ledger.Ledger, futures *futuresengine.Engine, options *optionsengine.Engine, logger *logrus.Logger) *Auditor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Auditor{ledger: l, futures: futures, options: options, logger: logger}
}

// Run executes the audit and logs every violation at error level.
func (a *Auditor) Run() Result {
	var violations []Violation

	violations = append(violations, a.checkCash()...)
	violations = append(violations, a.checkDuplicateHoldings()...)
	violations = append(violations, a.checkFuturesMargin()...)
	violations = append(violations, a.checkOptionsPremium()...)

	for _, v := range violations {
		a.logger.WithFields(logrus.Fields{"check": v.Check, "detail": v.Detail}).Error("reconciliation violation")
	}

	return Result{Consistent: len(violations) == 0, Violations: violations}
}

func (a *Auditor) checkCash() []Violation {
	if a.ledger.Cash() < 0 {
		return []Violation{{Check: "cash_non_negative", Detail: fmt.Sprintf("cash is %.2f", a.ledger.Cash())}}
	}
	return nil
}

func (a *Auditor) checkDuplicateHoldings() []Violation {
	// ledger.Holdings() is keyed by ticker, so a map can never itself hold
	// a duplicate; this check exists for the invariant's sake and catches
	// the only way a "duplicate" could surface: a blank ticker key.
	var violations []Violation
	for ticker, h := range a.ledger.Holdings() {
		if ticker == "" {
			violations = append(violations, Violation{Check: "no_blank_ticker", Detail: fmt.Sprintf("holding with blank ticker: %+v", h)})
		}
		if h.Quantity <= 0 {
			violations = append(violations, Violation{Check: "positive_quantity", Detail: fmt.Sprintf("%s has non-positive quantity %.8f", ticker, h.Quantity)})
		}
	}
	return violations
}

func (a *Auditor) checkFuturesMargin() []Violation {
	if a.futures == nil {
		return nil
	}
	var violations []Violation
	for _, p := range a.futures.Positions() {
		expected := margin.InitialMargin(p.Quantity, p.EntryPrice, p.Leverage)
		if math.Abs(expected-p.InitialMargin) > initialMarginTolerance*math.Max(1, expected) {
			violations = append(violations, Violation{
				Check:  "futures_initial_margin_consistent",
				Detail: fmt.Sprintf("position %s: expected initialMargin %.6f, got %.6f", p.ID, expected, p.InitialMargin),
			})
		}
	}
	return violations
}

func (a *Auditor) checkOptionsPremium() []Violation {
	if a.options == nil {
		return nil
	}
	var violations []Violation
	for _, p := range a.options.Positions() {
		if p.PremiumPaid <= 0 {
			violations = append(violations, Violation{
				Check:  "options_premium_positive",
				Detail: fmt.Sprintf("position %s has non-positive premiumPaid %.6f", p.ID, p.PremiumPaid),
			})
		}
	}
	return violations
}
