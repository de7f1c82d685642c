// Package margin holds the pure isolated-margin math shared by the futures
// engine: initial/maintenance margin, liquidation price, unrealized PnL,
// and ROE. Nothing here suspends or touches I/O.
package margin

// Side is the direction of a futures position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// maintenanceTier is one row of the notional-based maintenance margin table.
type maintenanceTier struct {
	upTo float64 // exclusive upper bound; +Inf for the last tier
	rate float64
}

var maintenanceTiers = []maintenanceTier{
	{upTo: 50_000, rate: 0.004},
	{upTo: 250_000, rate: 0.005},
	{upTo: 1_000_000, rate: 0.01},
	{upTo: -1, rate: 0.025}, // -1 sentinel: last tier, no upper bound
}

// MaintenanceMarginRate returns the tiered maintenance margin rate for the
// given notional (quantity * price).
func MaintenanceMarginRate(notional float64) float64 {
	for _, tier := range maintenanceTiers {
		if tier.upTo < 0 || notional < tier.upTo {
			return tier.rate
		}
	}
	return maintenanceTiers[len(maintenanceTiers)-1].rate
}

// InitialMargin is quantity*entryPrice/leverage.
func InitialMargin(quantity, entryPrice float64, leverage int) float64 {
	if leverage <= 0 {
		return 0
	}
	return quantity * entryPrice / float64(leverage)
}

// MaintenanceMargin is quantity*markPrice*mmRate.
func MaintenanceMargin(quantity, markPrice, mmRate float64) float64 {
	return quantity * markPrice * mmRate
}

// LiquidationPrice returns the mark price at which an isolated-margin
// position of the given side is forced closed.
func LiquidationPrice(side Side, entryPrice float64, leverage int, mmRate float64) float64 {
	if leverage <= 0 {
		return 0
	}
	inv := 1 / float64(leverage)
	switch side {
	case Long:
		return entryPrice * (1 - inv + mmRate)
	case Short:
		return entryPrice * (1 + inv - mmRate)
	default:
		return 0
	}
}

// UnrealizedPnL returns the mark-to-market profit/loss for qty units of the
// given side, entry, and mark price.
func UnrealizedPnL(side Side, quantity, entryPrice, markPrice float64) float64 {
	switch side {
	case Long:
		return (markPrice - entryPrice) * quantity
	case Short:
		return (entryPrice - markPrice) * quantity
	default:
		return 0
	}
}

// ROE is unrealizedPnl/initialMargin*100, or 0 when there is no margin to
// measure a return against.
func ROE(pnl, initialMargin float64) float64 {
	if initialMargin <= 0 {
		return 0
	}
	return pnl / initialMargin * 100
}
