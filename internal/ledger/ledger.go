// Package ledger owns the single cash pool and spot holdings shared across
// all four product lines. Engines never touch cash directly; they call
// Ledger.AdjustCash, the sole channel for cash mutation.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/store"
)

// AssetClass tags the product line a holding or position belongs to.
type AssetClass string

const (
	AssetUSStockSpot AssetClass = "us_stock_spot"
	AssetCryptoSpot  AssetClass = "crypto_spot"
)

// TxType identifies the kind of spot transaction.
type TxType string

const (
	TxBuy  TxType = "buy"
	TxSell TxType = "sell"
)

// AssetType is the legacy routing hint ("crypto" or "stock") accepted at the
// spot-engine boundary; it is distinct from AssetClass, which is the
// persisted tag on a holding.
type AssetType string

const (
	AssetTypeCrypto AssetType = "crypto"
	AssetTypeStock  AssetType = "stock"
)

// Holding is one ticker's current spot position.
type Holding struct {
	Quantity     float64    `json:"quantity"`
	AveragePrice float64    `json:"average_price"`
	AssetClass   AssetClass `json:"asset_class"`
}

// Transaction is an append-only spot buy/sell record.
type Transaction struct {
	Type      TxType  `json:"type"`
	Ticker    string  `json:"ticker"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	DateISO   string  `json:"date"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// HoldingMeta is operator-supplied narrative context for a holding.
type HoldingMeta struct {
	Thesis  string `json:"thesis,omitempty"`
	Context string `json:"context,omitempty"`
}

// DailySnapshot records one day's total portfolio value.
type DailySnapshot struct {
	Date       string  `json:"date"`
	TotalValue float64 `json:"total_value"`
}

const maxDailySnapshots = 90

// Data is the persisted shape of the portfolio ledger.
type Data struct {
	Cash               float64                `json:"cash"`
	Holdings           map[string]Holding     `json:"holdings"`
	TransactionHistory []Transaction          `json:"transaction_history"`
	HoldingMeta        map[string]HoldingMeta `json:"holding_meta"`
	TickerTypes        map[string]AssetType   `json:"ticker_types"`
	DailySnapshots     []DailySnapshot        `json:"daily_snapshots"`
}

// Defaults returns a fresh ledger with the spec's starting cash.
func Defaults() Data {
	return Data{
		Cash:           100_000,
		Holdings:       map[string]Holding{},
		HoldingMeta:    map[string]HoldingMeta{},
		TickerTypes:    map[string]AssetType{},
		DailySnapshots: []DailySnapshot{},
	}
}

// Ledger is the Portfolio Ledger component (spec §4.3).
type Ledger struct {
	store *store.JSONStore[Data]
	now   func() time.Time
}

// New wraps an already-opened store. Use store.New(path, ledger.Defaults)
// to open the underlying file.
func New(s *store.JSONStore[Data]) *Ledger {
	return &Ledger{store: s, now: time.Now}
}

// Result is the tagged outcome every public ledger operation returns.
type Result struct {
	Success bool
	Message string
}

func fail(err error, msg string) (Result, error) {
	return Result{Success: false, Message: msg}, err
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.store.Get().Cash
}

// Holdings returns a copy of the current holdings map.
func (l *Ledger) Holdings() map[string]Holding {
	d := l.store.Get()
	out := make(map[string]Holding, len(d.Holdings))
	for k, v := range d.Holdings {
		out[k] = v
	}
	return out
}

// BuySpot executes a fake-filled spot purchase.
func (l *Ledger) BuySpot(ticker string, quantity, price float64, reasoning string, assetType AssetType) (Result, error) {
	if quantity <= 0 || price <= 0 {
		return fail(errkind.ErrInvalidParam, "quantity and price must be positive")
	}
	cost := quantity * price

	var result Result
	var saveErr error
	err := l.store.Save(func(d *Data) {
		if d.Cash < cost {
			result = Result{Success: false, Message: "insufficient funds"}
			saveErr = errkind.ErrInsufficientFunds
			return
		}
		d.Cash -= cost

		if assetType != "" {
			d.TickerTypes[ticker] = assetType
		}

		assetClass := assetClassFor(assetType)
		if existing, ok := d.Holdings[ticker]; ok {
			newQty := existing.Quantity + quantity
			newAvg := (existing.Quantity*existing.AveragePrice + quantity*price) / newQty
			cls := existing.AssetClass
			if assetType != "" {
				cls = assetClassFor(assetType)
			}
			d.Holdings[ticker] = Holding{Quantity: newQty, AveragePrice: newAvg, AssetClass: cls}
		} else {
			d.Holdings[ticker] = Holding{Quantity: quantity, AveragePrice: price, AssetClass: assetClass}
		}

		d.TransactionHistory = append(d.TransactionHistory, Transaction{
			Type: TxBuy, Ticker: ticker, Quantity: quantity, Price: price,
			DateISO: l.now().UTC().Format(time.RFC3339), Reasoning: reasoning,
		})
	})
	if saveErr != nil {
		return result, saveErr
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", errkind.ErrPersistence, err)
		return fail(wrapped, "persistence error")
	}
	return Result{Success: true, Message: "bought"}, nil
}

// SellSpot executes a fake-filled spot sale.
func (l *Ledger) SellSpot(ticker string, quantity, price float64, reasoning string) (Result, error) {
	if quantity <= 0 || price <= 0 {
		return fail(errkind.ErrInvalidParam, "quantity and price must be positive")
	}

	var result Result
	var saveErr error
	err := l.store.Save(func(d *Data) {
		existing, ok := d.Holdings[ticker]
		if !ok || existing.Quantity < quantity {
			result = Result{Success: false, Message: "insufficient holdings"}
			saveErr = errkind.ErrInsufficientHoldings
			return
		}
		d.Cash += quantity * price

		remaining := existing.Quantity - quantity
		if remaining <= 0 {
			delete(d.Holdings, ticker)
		} else {
			existing.Quantity = remaining
			d.Holdings[ticker] = existing
		}

		d.TransactionHistory = append(d.TransactionHistory, Transaction{
			Type: TxSell, Ticker: ticker, Quantity: quantity, Price: price,
			DateISO: l.now().UTC().Format(time.RFC3339), Reasoning: reasoning,
		})
	})
	if saveErr != nil {
		return result, saveErr
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", errkind.ErrPersistence, err)
		return fail(wrapped, "persistence error")
	}
	return Result{Success: true, Message: "sold"}, nil
}

// AdjustCash is the sole channel engines use to mutate cash. It clamps at
// zero and never goes negative.
func (l *Ledger) AdjustCash(delta float64) error {
	return l.store.Save(func(d *Data) {
		d.Cash += delta
		if d.Cash < 0 {
			d.Cash = 0
		}
	})
}

// SetHoldingMeta partial-updates the thesis/context for a ticker.
func (l *Ledger) SetHoldingMeta(ticker string, meta HoldingMeta) error {
	return l.store.Save(func(d *Data) {
		existing := d.HoldingMeta[ticker]
		if meta.Thesis != "" {
			existing.Thesis = meta.Thesis
		}
		if meta.Context != "" {
			existing.Context = meta.Context
		}
		d.HoldingMeta[ticker] = existing
	})
}

// HoldingMeta returns the narrative context set for a ticker, zero-valued if
// none was ever recorded.
func (l *Ledger) HoldingMeta(ticker string) HoldingMeta {
	return l.store.Get().HoldingMeta[ticker]
}

// TickerType returns the asset-type hint recorded for ticker by an earlier
// spot buy, and whether one was ever recorded.
func (l *Ledger) TickerType(ticker string) (AssetType, bool) {
	t, ok := l.store.Get().TickerTypes[ticker]
	return t, ok
}

// Reset replaces the ledger with fresh defaults at the given cash balance.
// It clears holdings and history; futures/options aggregates are untouched
// (see SPEC_FULL.md §6.2 — reset does not cascade).
func (l *Ledger) Reset(cash float64) error {
	if cash <= 0 {
		cash = 100_000
	}
	return l.store.Save(func(d *Data) {
		*d = Data{
			Cash:           cash,
			Holdings:       map[string]Holding{},
			HoldingMeta:    map[string]HoldingMeta{},
			TickerTypes:    map[string]AssetType{},
			DailySnapshots: []DailySnapshot{},
		}
	})
}

// RecordDailySnapshot creates-or-updates today's total-value entry, capped
// to the most recent 90 entries.
func (l *Ledger) RecordDailySnapshot(totalValue float64) error {
	today := l.now().UTC().Format("2006-01-02")
	return l.store.Save(func(d *Data) {
		for i := range d.DailySnapshots {
			if d.DailySnapshots[i].Date == today {
				d.DailySnapshots[i].TotalValue = totalValue
				return
			}
		}
		d.DailySnapshots = append(d.DailySnapshots, DailySnapshot{Date: today, TotalValue: totalValue})
		if len(d.DailySnapshots) > maxDailySnapshots {
			excess := len(d.DailySnapshots) - maxDailySnapshots
			d.DailySnapshots = d.DailySnapshots[excess:]
		}
	})
}

// DailySnapshots returns a copy of the recorded snapshots, oldest first.
func (l *Ledger) DailySnapshots() []DailySnapshot {
	d := l.store.Get()
	out := make([]DailySnapshot, len(d.DailySnapshots))
	copy(out, d.DailySnapshots)
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// PortfolioValue is the spec §4.3 getPortfolioValue result.
type PortfolioValue struct {
	TotalValue float64
	SpotEquity float64
	Cash       float64
}

// GetPortfolioValue values every holding at currentPrices, falling back to
// the holding's average cost basis when a live price isn't supplied.
func (l *Ledger) GetPortfolioValue(currentPrices map[string]float64) PortfolioValue {
	d := l.store.Get()
	var spotEquity float64
	for ticker, h := range d.Holdings {
		price, ok := currentPrices[ticker]
		if !ok || price <= 0 {
			price = h.AveragePrice
		}
		spotEquity += h.Quantity * price
	}
	return PortfolioValue{
		TotalValue: d.Cash + spotEquity,
		SpotEquity: spotEquity,
		Cash:       d.Cash,
	}
}

// Transactions returns the most recent transactions for a ticker, newest
// first, capped at limit (0 means no cap).
func (l *Ledger) Transactions(ticker string, limit int) []Transaction {
	d := l.store.Get()
	var matched []Transaction
	for i := len(d.TransactionHistory) - 1; i >= 0; i-- {
		tx := d.TransactionHistory[i]
		if ticker != "" && tx.Ticker != ticker {
			continue
		}
		matched = append(matched, tx)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched
}

func assetClassFor(t AssetType) AssetClass {
	if t == AssetTypeStock {
		return AssetUSStockSpot
	}
	return AssetCryptoSpot
}
