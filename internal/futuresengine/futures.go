// Package futuresengine implements leveraged crypto perpetual futures with
// isolated margin: open/close/partial-close, per-ticker leverage config,
// live mark-to-market, and forced liquidation.
package futuresengine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/tradecore/internal/broadcast"
	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/margin"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/google/uuid"
)

const (
	minLeverage     = 1
	maxLeverage     = 150
	defaultLeverage = 20
	assetClassPerp  = "crypto_perp"
	marginModeIso   = "isolated"
)

// TxType identifies the kind of futures transaction.
type TxType string

const (
	TxOpenLong   TxType = "open_long"
	TxOpenShort  TxType = "open_short"
	TxCloseLong  TxType = "close_long"
	TxCloseShort TxType = "close_short"
	TxLiquidate  TxType = "liquidation"
)

// Transaction is an append-only futures activity record.
type Transaction struct {
	Type     TxType  `json:"type"`
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Leverage int     `json:"leverage,omitempty"`
	Pnl      float64 `json:"pnl,omitempty"`
	DateISO  string  `json:"date"`
}

// Position is one open (or just-closed, pre-removal) futures position.
type Position struct {
	ID                    string      `json:"id"`
	Ticker                string      `json:"ticker"`
	AssetClass            string      `json:"asset_class"`
	Side                  margin.Side `json:"side"`
	Quantity              float64     `json:"quantity"`
	EntryPrice            float64     `json:"entry_price"`
	MarkPrice             float64     `json:"mark_price"`
	Leverage              int         `json:"leverage"`
	MarginMode            string      `json:"margin_mode"`
	InitialMargin         float64     `json:"initial_margin"`
	MaintenanceMargin     float64     `json:"maintenance_margin"`
	MarginBalance         float64     `json:"margin_balance"`
	LiquidationPrice      float64     `json:"liquidation_price"`
	MaintenanceMarginRate float64     `json:"maintenance_margin_rate"`
	UnrealizedPnl         float64     `json:"unrealized_pnl"`
	ROE                   float64     `json:"roe"`
	RealizedPnl           float64     `json:"realized_pnl"`
	OpenedAt              string      `json:"opened_at"`
	UpdatedAt             string      `json:"updated_at"`
}

// Data is the persisted shape of the futures aggregate.
type Data struct {
	Positions        []Position     `json:"positions"`
	LeverageSettings map[string]int `json:"leverage_settings"`
	Transactions     []Transaction  `json:"transactions"`
}

// Defaults returns an empty futures aggregate.
func Defaults() Data {
	return Data{
		Positions:        []Position{},
		LeverageSettings: map[string]int{},
		Transactions:     []Transaction{},
	}
}

// Result is the tagged outcome of a mutating operation.
type Result struct {
	Success bool
	Message string
}

// CloseResult is closePosition's result: success/message plus the realized
// PnL on success.
type CloseResult struct {
	Success bool
	Message string
	Pnl     float64
}

// Account is the aggregate view returned by getAccount.
type Account struct {
	AvailableBalance   float64
	TotalMarginUsed    float64
	TotalUnrealizedPnl float64
}

// Engine is the Futures Engine component (spec §4.5).
type Engine struct {
	store  *store.JSONStore[Data]
	ledger *ledger.Ledger
	quotes quoteprovider.QuoteProvider
	bcast  broadcast.Broadcaster
	now    func() time.Time
	newID  func() string
	mu     sync.Mutex // serializes read-modify-write across operations
}

// New wires the futures engine's dependencies. bcast may be nil, in which
// case events are discarded.
func New(s *store.JSONStore[Data], l *ledger.Ledger, quotes quoteprovider.QuoteProvider, bcast broadcast.Broadcaster) *Engine {
	if bcast == nil {
		bcast = broadcast.NoOp{}
	}
	return &Engine{
		store:  s,
		ledger: l,
		quotes: quotes,
		bcast:  bcast,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func isoNow(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

func fail(msg string, err error) (Result, error) {
	return Result{Success: false, Message: msg}, err
}

func (e *Engine) resolveLeverage(d *Data, ticker string, lev *int) (int, error) {
	if lev != nil {
		if *lev < minLeverage || *lev > maxLeverage {
			return 0, fmt.Errorf("%w: leverage out of range", errkind.ErrInvalidParam)
		}
		return *lev, nil
	}
	if setting, ok := d.LeverageSettings[ticker]; ok {
		return setting, nil
	}
	return defaultLeverage, nil
}

func (e *Engine) open(ctx context.Context, side margin.Side, ticker string, qty float64, lev *int) (Result, error) {
	if qty <= 0 {
		return fail("quantity must be positive", errkind.ErrInvalidParam)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	e.mu.Lock()
	defer e.mu.Unlock()

	quote, err := e.quotes.FetchQuote(ctx, ticker)
	if err != nil {
		return fail("failed to fetch mark price", err)
	}
	entryPrice := quote.Price

	d := e.store.Get()
	leverage, err := e.resolveLeverage(&d, ticker, lev)
	if err != nil {
		return fail("invalid leverage", err)
	}

	initialMargin := margin.InitialMargin(qty, entryPrice, leverage)
	if e.ledger.Cash() < initialMargin {
		return fail("insufficient funds for initial margin", errkind.ErrInsufficientFunds)
	}

	notional := qty * entryPrice
	mmRate := margin.MaintenanceMarginRate(notional)
	liqPrice := margin.LiquidationPrice(side, entryPrice, leverage, mmRate)
	maintMargin := margin.MaintenanceMargin(qty, entryPrice, mmRate)

	if err := e.ledger.AdjustCash(-initialMargin); err != nil {
		return fail("failed to debit margin", err)
	}

	now := e.now()
	pos := Position{
		ID:                    e.newID(),
		Ticker:                ticker,
		AssetClass:            assetClassPerp,
		Side:                  side,
		Quantity:              qty,
		EntryPrice:            entryPrice,
		MarkPrice:             entryPrice,
		Leverage:              leverage,
		MarginMode:            marginModeIso,
		InitialMargin:         initialMargin,
		MaintenanceMargin:     maintMargin,
		MarginBalance:         initialMargin,
		LiquidationPrice:      liqPrice,
		MaintenanceMarginRate: mmRate,
		RealizedPnl:           0,
		OpenedAt:              isoNow(now),
		UpdatedAt:             isoNow(now),
	}

	txType := TxOpenLong
	if side == margin.Short {
		txType = TxOpenShort
	}

	saveErr := e.store.Save(func(dd *Data) {
		dd.Positions = append(dd.Positions, pos)
		dd.Transactions = append(dd.Transactions, Transaction{
			Type: txType, Ticker: ticker, Quantity: qty, Price: entryPrice,
			Leverage: leverage, DateISO: isoNow(now),
		})
	})
	if saveErr != nil {
		return fail("failed to persist position", fmt.Errorf("%w: %v", errkind.ErrPersistence, saveErr))
	}
	return Result{Success: true, Message: "position opened"}, nil
}

// OpenLong opens (or would open) a long position. lev may be nil to use the
// per-ticker setting or the 20x default.
func (e *Engine) OpenLong(ctx context.Context, ticker string, qty float64, lev *int) (Result, error) {
	return e.open(ctx, margin.Long, ticker, qty, lev)
}

// OpenShort opens a short position.
func (e *Engine) OpenShort(ctx context.Context, ticker string, qty float64, lev *int) (Result, error) {
	return e.open(ctx, margin.Short, ticker, qty, lev)
}

// ClosePosition closes all or part of a position. qty nil means close in
// full.
func (e *Engine) ClosePosition(ctx context.Context, id string, qty *float64) (CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.store.Get()
	idx := -1
	for i, p := range d.Positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return CloseResult{Success: false, Message: "position not found"}, errkind.ErrNotFound
	}
	pos := d.Positions[idx]

	closeQty := pos.Quantity
	if qty != nil {
		closeQty = *qty
	}
	if closeQty <= 0 || closeQty > pos.Quantity {
		return CloseResult{Success: false, Message: "invalid close quantity"}, errkind.ErrInvalidParam
	}

	quote, err := e.quotes.FetchQuote(ctx, pos.Ticker)
	if err != nil {
		return CloseResult{Success: false, Message: "failed to fetch mark price"}, err
	}
	mark := quote.Price

	pnl := margin.UnrealizedPnL(pos.Side, closeQty, pos.EntryPrice, mark)
	marginReleased := (closeQty / pos.Quantity) * pos.InitialMargin
	credit := math.Max(0, marginReleased+pnl)

	if err := e.ledger.AdjustCash(credit); err != nil {
		return CloseResult{Success: false, Message: "failed to credit cash"}, fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}

	now := e.now()
	remaining := pos.Quantity - closeQty

	saveErr := e.store.Save(func(dd *Data) {
		if remaining <= 0 {
			dd.Positions = append(dd.Positions[:idx], dd.Positions[idx+1:]...)
		} else {
			updated := pos
			updated.Quantity = remaining
			updated.InitialMargin = pos.InitialMargin - marginReleased
			updated.MarginBalance = updated.InitialMargin
			updated.RealizedPnl = pos.RealizedPnl + pnl
			updated.UpdatedAt = isoNow(now)
			dd.Positions[idx] = updated
		}

		txType := TxCloseLong
		if pos.Side == margin.Short {
			txType = TxCloseShort
		}
		dd.Transactions = append(dd.Transactions, Transaction{
			Type: txType, Ticker: pos.Ticker, Quantity: closeQty, Price: mark,
			Pnl: pnl, DateISO: isoNow(now),
		})
	})
	if saveErr != nil {
		return CloseResult{Success: false, Message: "failed to persist close"}, fmt.Errorf("%w: %v", errkind.ErrPersistence, saveErr)
	}
	return CloseResult{Success: true, Message: "position closed", Pnl: pnl}, nil
}

// SetLeverage sets the default leverage for a ticker. Rejected while any
// open position for that ticker exists.
func (e *Engine) SetLeverage(ticker string, lev int) (Result, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if lev < minLeverage || lev > maxLeverage {
		return fail("leverage out of range", errkind.ErrInvalidParam)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.store.Get()
	for _, p := range d.Positions {
		if p.Ticker == ticker {
			return fail("cannot change leverage while a position is open", errkind.ErrInvariant)
		}
	}

	saveErr := e.store.Save(func(dd *Data) {
		if dd.LeverageSettings == nil {
			dd.LeverageSettings = map[string]int{}
		}
		dd.LeverageSettings[ticker] = lev
	})
	if saveErr != nil {
		return fail("failed to persist leverage setting", fmt.Errorf("%w: %v", errkind.ErrPersistence, saveErr))
	}
	return Result{Success: true, Message: "leverage updated"}, nil
}

// GetPositions refreshes marks for all unique tickers (swallowing
// per-ticker fetch failures, keeping the last known mark) and returns an
// updated copy of every position.
func (e *Engine) GetPositions(ctx context.Context) []Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.store.Get()
	marks := e.refreshMarks(ctx, d.Positions)

	now := e.now()
	out := make([]Position, len(d.Positions))
	for i, p := range d.Positions {
		mark, ok := marks[p.Ticker]
		if !ok {
			mark = p.MarkPrice
		}
		notional := p.Quantity * mark
		mmRate := margin.MaintenanceMarginRate(notional)
		p.MarkPrice = mark
		p.MaintenanceMarginRate = mmRate
		p.MaintenanceMargin = margin.MaintenanceMargin(p.Quantity, mark, mmRate)
		p.UnrealizedPnl = margin.UnrealizedPnL(p.Side, p.Quantity, p.EntryPrice, mark)
		p.ROE = margin.ROE(p.UnrealizedPnl, p.InitialMargin)
		p.UpdatedAt = isoNow(now)
		out[i] = p
	}

	_ = e.store.Save(func(dd *Data) { dd.Positions = out })
	return out
}

func (e *Engine) refreshMarks(ctx context.Context, positions []Position) map[string]float64 {
	tickers := uniqueTickers(positions)
	marks := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		q, err := e.quotes.FetchQuote(ctx, t)
		if err != nil {
			continue
		}
		marks[t] = q.Price
	}
	return marks
}

func uniqueTickers(positions []Position) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range positions {
		if _, ok := seen[p.Ticker]; ok {
			continue
		}
		seen[p.Ticker] = struct{}{}
		out = append(out, p.Ticker)
	}
	sort.Strings(out)
	return out
}

// GetAccount summarizes margin usage across all open positions.
func (e *Engine) GetAccount(ctx context.Context) Account {
	positions := e.GetPositions(ctx)
	acct := Account{AvailableBalance: e.ledger.Cash()}
	for _, p := range positions {
		acct.TotalMarginUsed += p.InitialMargin
		acct.TotalUnrealizedPnl += p.UnrealizedPnl
	}
	return acct
}

// LiquidationInfo describes a forced close, for broadcast/logging.
type LiquidationInfo struct {
	Ticker       string
	Side         margin.Side
	Quantity     float64
	EntryPrice   float64
	MarkPrice    float64
	Pnl          float64
	LiquidatedAt string
}

// LiquidatePosition force-closes a position at markPrice, crediting only
// the margin balance net of loss (floored at zero — isolated margin never
// goes negative). Returns nil if the position no longer exists (already
// closed by a concurrent operation).
func (e *Engine) LiquidatePosition(id string, markPrice float64) (*LiquidationInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.store.Get()
	idx := -1
	for i, p := range d.Positions {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}
	pos := d.Positions[idx]

	pnl := margin.UnrealizedPnL(pos.Side, pos.Quantity, pos.EntryPrice, markPrice)
	flooredPnl := math.Max(pnl, -pos.MarginBalance)
	credit := math.Max(0, pos.MarginBalance+flooredPnl)

	if err := e.ledger.AdjustCash(credit); err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}

	now := e.now()
	saveErr := e.store.Save(func(dd *Data) {
		dd.Positions = append(dd.Positions[:idx], dd.Positions[idx+1:]...)
		dd.Transactions = append(dd.Transactions, Transaction{
			Type: TxLiquidate, Ticker: pos.Ticker, Quantity: pos.Quantity, Price: markPrice,
			Pnl: flooredPnl, DateISO: isoNow(now),
		})
	})
	if saveErr != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrPersistence, saveErr)
	}

	info := &LiquidationInfo{
		Ticker: pos.Ticker, Side: pos.Side, Quantity: pos.Quantity,
		EntryPrice: pos.EntryPrice, MarkPrice: markPrice, Pnl: flooredPnl,
		LiquidatedAt: isoNow(now),
	}
	e.bcast.Emit("futures.liquidation", map[string]interface{}{
		"ticker": info.Ticker, "side": info.Side, "quantity": info.Quantity,
		"entryPrice": info.EntryPrice, "markPrice": info.MarkPrice,
		"pnl": info.Pnl, "liquidatedAtISO": info.LiquidatedAt,
	})
	return info, nil
}

// Positions returns a snapshot of raw persisted positions without refreshing
// marks — used by the liquidation monitor, which fetches marks itself.
func (e *Engine) Positions() []Position {
	d := e.store.Get()
	out := make([]Position, len(d.Positions))
	copy(out, d.Positions)
	return out
}
