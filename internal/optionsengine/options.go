// Package optionsengine implements long-only American-style stock options:
// buy/sell/partial-sell with the optionspricing surrogate, and periodic
// expiry settlement.
package optionsengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/tradecore/internal/broadcast"
	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/optionspricing"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/store"
	"github.com/eddiefleurent/tradecore/internal/util"
	"github.com/google/uuid"
)

const assetClassOption = "us_stock_option"

// TxType identifies the kind of options transaction.
type TxType string

const (
	TxBuyCall   TxType = "buy_call"
	TxBuyPut    TxType = "buy_put"
	TxSellCall  TxType = "sell_call"
	TxSellPut   TxType = "sell_put"
	TxExpireITM TxType = "expire_itm"
	TxExpireOTM TxType = "expire_otm"
)

// Transaction is an append-only options activity record.
type Transaction struct {
	Type            TxType  `json:"type"`
	Underlying      string  `json:"underlying"`
	StrikePrice     float64 `json:"strike_price"`
	ExpiryDate      string  `json:"expiry_date"`
	Contracts       float64 `json:"contracts"`
	PremiumPerShare float64 `json:"premium_per_share"`
	TotalAmount     float64 `json:"total_amount"`
	Pnl             float64 `json:"pnl,omitempty"`
	DateISO         string  `json:"date"`
}

// Contract is the immutable terms of an options position.
type Contract struct {
	Underlying  string                    `json:"underlying"`
	Type        optionspricing.OptionType `json:"type"`
	StrikePrice float64                   `json:"strike_price"`
	ExpiryDate  string                    `json:"expiry_date"`
	Multiplier  int                       `json:"multiplier"`
	ImpliedVol  float64                   `json:"implied_vol"`
}

// Position is one open options position.
type Position struct {
	ID                   string   `json:"id"`
	Contract             Contract `json:"contract"`
	AssetClass           string   `json:"asset_class"`
	Contracts            float64  `json:"contracts"`
	PremiumPaid          float64  `json:"premium_paid"`
	PremiumPerShare      float64  `json:"premium_per_share"`
	CurrentPremium       float64  `json:"current_premium"`
	CurrentValue         float64  `json:"current_value"`
	UnrealizedPnl        float64  `json:"unrealized_pnl"`
	UnrealizedPnlPercent float64  `json:"unrealized_pnl_percent"`
	DaysToExpiry         float64  `json:"days_to_expiry"`
	OpenedAtISO          string   `json:"opened_at"`
	ExpiryDate           string   `json:"expiry_date"`
}

// Data is the persisted shape of the options aggregate.
type Data struct {
	Positions    []Position    `json:"positions"`
	Transactions []Transaction `json:"transactions"`
}

// Defaults returns an empty options aggregate.
func Defaults() Data {
	return Data{Positions: []Position{}, Transactions: []Transaction{}}
}

// Result is the tagged outcome of buyOption.
type Result struct {
	Success bool
	Message string
}

// SellResult is sellOption's outcome: success/message plus realized PnL.
type SellResult struct {
	Success bool
	Message string
	Pnl     float64
}

// Quote is getQuote's result.
type Quote struct {
	PremiumPerShare    float64
	PremiumPerContract float64
	IntrinsicValue     float64
	TimeValue          float64
	DaysToExpiry       float64
	ImpliedVol         float64
}

// Engine is the Options Engine component (spec §4.9).
type Engine struct {
	store  *store.JSONStore[Data]
	ledger *ledger.Ledger
	quotes quoteprovider.QuoteProvider
	bcast  broadcast.Broadcaster
	now    func() time.Time
	newID  func() string
	mu     sync.Mutex
}

// New wires the options engine's dependencies. bcast may be nil.
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

// BuyOption opens a long call or put position.
func (e *Engine) BuyOption(ctx context.Context, ticker string, optType optionspricing.OptionType, strike float64, expiry string, contracts float64) (Result, error) {
	if contracts <= 0 {
		return fail("contracts must be positive", errkind.ErrInvalidParam)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	dte, err := optionspricing.DaysToExpiryClamped(expiry, now)
	if err != nil {
		return fail("invalid expiry", fmt.Errorf("%w: %v", errkind.ErrInvalidParam, err))
	}
	rawDte, err := optionspricing.DaysToExpiry(expiry, now)
	if err != nil || rawDte <= 0 {
		return fail("expiry must be in the future", errkind.ErrInvalidParam)
	}

	quote, err := e.quotes.FetchQuote(ctx, ticker)
	if err != nil {
		return fail("failed to fetch underlying price", err)
	}

	iv := optionspricing.ImpliedVol(ticker)
	premiumPerShare := optionspricing.Premium(quote.Price, strike, optType, iv, dte)
	totalPremium := premiumPerShare * float64(optionspricing.Multiplier) * contracts

	if e.ledger.Cash() < totalPremium {
		return fail("insufficient funds for premium", errkind.ErrInsufficientFunds)
	}
	if err := e.ledger.AdjustCash(-totalPremium); err != nil {
		return fail("failed to debit premium", fmt.Errorf("%w: %v", errkind.ErrPersistence, err))
	}

	pos := Position{
		ID: e.newID(),
		Contract: Contract{
			Underlying: ticker, Type: optType, StrikePrice: strike,
			ExpiryDate: expiry, Multiplier: optionspricing.Multiplier, ImpliedVol: iv,
		},
		AssetClass:      assetClassOption,
		Contracts:       contracts,
		PremiumPaid:     totalPremium,
		PremiumPerShare: premiumPerShare,
		CurrentPremium:  premiumPerShare,
		CurrentValue:    totalPremium,
		DaysToExpiry:    dte,
		OpenedAtISO:     isoNow(now),
		ExpiryDate:      expiry,
	}

	txType := TxBuyCall
	if optType == optionspricing.Put {
		txType = TxBuyPut
	}

	saveErr := e.store.Save(func(d *Data) {
		d.Positions = append(d.Positions, pos)
		d.Transactions = append(d.Transactions, Transaction{
			Type: txType, Underlying: ticker, StrikePrice: strike, ExpiryDate: expiry,
			Contracts: contracts, PremiumPerShare: premiumPerShare, TotalAmount: totalPremium,
			DateISO: isoNow(now),
		})
	})
	if saveErr != nil {
		return fail("failed to persist position", fmt.Errorf("%w: %v", errkind.ErrPersistence, saveErr))
	}
	return Result{Success: true, Message: "option bought"}, nil
}

// SellOption closes all or part of a held position.
func (e *Engine) SellOption(ctx context.Context, positionID string, contracts *float64) (SellResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.store.Get()
	idx := -1
	for i, p := range d.Positions {
		if p.ID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return SellResult{Success: false, Message: "position not found"}, errkind.ErrNotFound
	}
	pos := d.Positions[idx]

	sellQty := pos.Contracts
	if contracts != nil {
		sellQty = *contracts
	}
	if sellQty <= 0 || sellQty > pos.Contracts {
		return SellResult{Success: false, Message: "invalid contract count"}, errkind.ErrInvalidParam
	}

	quote, err := e.quotes.FetchQuote(ctx, pos.Contract.Underlying)
	if err != nil {
		return SellResult{Success: false, Message: "failed to fetch underlying price"}, err
	}

	now := e.now()
	dte, err := optionspricing.DaysToExpiryClamped(pos.Contract.ExpiryDate, now)
	if err != nil {
		dte = 0
	}
	premiumPerShare := optionspricing.Premium(quote.Price, pos.Contract.StrikePrice, pos.Contract.Type, pos.Contract.ImpliedVol, dte)
	proceeds := premiumPerShare * float64(optionspricing.Multiplier) * sellQty
	costBasis := (pos.PremiumPaid / pos.Contracts) * sellQty
	pnl := proceeds - costBasis

	if err := e.ledger.AdjustCash(proceeds); err != nil {
		return SellResult{Success: false, Message: "failed to credit proceeds"}, fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}

	remaining := pos.Contracts - sellQty
	txType := TxSellCall
	if pos.Contract.Type == optionspricing.Put {
		txType = TxSellPut
	}

	saveErr := e.store.Save(func(dd *Data) {
		if remaining <= 0 {
			dd.Positions = append(dd.Positions[:idx], dd.Positions[idx+1:]...)
		} else {
			updated := pos
			updated.Contracts = remaining
			updated.PremiumPaid = pos.PremiumPaid - costBasis
			dd.Positions[idx] = updated
		}
		dd.Transactions = append(dd.Transactions, Transaction{
			Type: txType, Underlying: pos.Contract.Underlying, StrikePrice: pos.Contract.StrikePrice,
			ExpiryDate: pos.Contract.ExpiryDate, Contracts: sellQty, PremiumPerShare: premiumPerShare,
			TotalAmount: proceeds, Pnl: pnl, DateISO: isoNow(now),
		})
	})
	if saveErr != nil {
		return SellResult{Success: false, Message: "failed to persist sale"}, fmt.Errorf("%w: %v", errkind.ErrPersistence, saveErr)
	}
	return SellResult{Success: true, Message: "option sold", Pnl: pnl}, nil
}

// SettleExpiredOptions sweeps every position whose expiry instant has
// passed, cash-settling ITM positions and dropping OTM ones. Underlying
// fetch failures leave the position untouched for the next tick.
func (e *Engine) SettleExpiredOptions(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	d := e.store.Get()
	var settled []string

	for _, pos := range d.Positions {
		expired, err := optionspricing.HasExpired(pos.Contract.ExpiryDate, now)
		if err != nil || !expired {
			continue
		}

		quote, err := e.quotes.FetchQuote(ctx, pos.Contract.Underlying)
		if err != nil {
			continue // retry next tick
		}

		intrinsic := optionspricing.IntrinsicValue(quote.Price, pos.Contract.StrikePrice, pos.Contract.Type)
		settlement := intrinsic * float64(optionspricing.Multiplier) * pos.Contracts
		isITM := intrinsic > 0
		pnl := settlement - pos.PremiumPaid

		if isITM {
			if err := e.ledger.AdjustCash(settlement); err != nil {
				continue // retry next tick rather than silently drop the position
			}
		}

		txType := TxExpireOTM
		if isITM {
			txType = TxExpireITM
		}

		posID := pos.ID
		settled = append(settled, posID)
		_ = e.store.Save(func(dd *Data) {
			for i, p := range dd.Positions {
				if p.ID != posID {
					continue
				}
				dd.Positions = append(dd.Positions[:i], dd.Positions[i+1:]...)
				break
			}
			dd.Transactions = append(dd.Transactions, Transaction{
				Type: txType, Underlying: pos.Contract.Underlying, StrikePrice: pos.Contract.StrikePrice,
				ExpiryDate: pos.Contract.ExpiryDate, Contracts: pos.Contracts, PremiumPerShare: intrinsic,
				TotalAmount: settlement, Pnl: pnl, DateISO: isoNow(now),
			})
		})

		e.bcast.Emit("options.expired", map[string]interface{}{
			"underlying": pos.Contract.Underlying, "strike": pos.Contract.StrikePrice,
			"expiry": pos.Contract.ExpiryDate, "contracts": pos.Contracts,
			"isITM": isITM, "settlement": settlement, "pnl": pnl,
		})
	}
}

// GetPositions refreshes underlying prices (swallowing per-position
// failures, keeping the last known premium) and returns an updated copy of
// every position.
func (e *Engine) GetPositions(ctx context.Context) []Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.store.Get()
	now := e.now()
	out := make([]Position, len(d.Positions))
	for i, p := range d.Positions {
		quote, err := e.quotes.FetchQuote(ctx, p.Contract.Underlying)
		if err != nil {
			out[i] = p
			continue
		}
		dte, dteErr := optionspricing.DaysToExpiryClamped(p.Contract.ExpiryDate, now)
		if dteErr != nil {
			dte = p.DaysToExpiry
		}
		premium := optionspricing.Premium(quote.Price, p.Contract.StrikePrice, p.Contract.Type, p.Contract.ImpliedVol, dte)
		currentValue := premium * float64(optionspricing.Multiplier) * p.Contracts
		unrealizedPnl := currentValue - p.PremiumPaid
		var pnlPct float64
		if p.PremiumPaid > 0 {
			pnlPct = unrealizedPnl / p.PremiumPaid * 100
		}

		p.CurrentPremium = premium
		p.CurrentValue = currentValue
		p.UnrealizedPnl = unrealizedPnl
		p.UnrealizedPnlPercent = pnlPct
		p.DaysToExpiry = dte
		out[i] = p
	}

	_ = e.store.Save(func(dd *Data) { dd.Positions = out })
	return out
}

// Positions returns the raw persisted positions without refreshing
// premiums against a live quote. Used by reconciliation, where a stale
// premium is irrelevant.
func (e *Engine) Positions() []Position {
	d := e.store.Get()
	out := make([]Position, len(d.Positions))
	copy(out, d.Positions)
	return out
}

// GetQuote prices an arbitrary contract without opening a position.
func (e *Engine) GetQuote(ctx context.Context, ticker string, optType optionspricing.OptionType, strike float64, expiry string) (Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	now := e.now()

	quoteResult, err := e.quotes.FetchQuote(ctx, ticker)
	if err != nil {
		return Quote{}, err
	}
	dte, err := optionspricing.DaysToExpiryClamped(expiry, now)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", errkind.ErrInvalidParam, err)
	}

	iv := optionspricing.ImpliedVol(ticker)
	intrinsic := optionspricing.IntrinsicValue(quoteResult.Price, strike, optType)
	timeValue := optionspricing.TimeValue(quoteResult.Price, iv, dte)
	premiumPerShare := intrinsic + timeValue

	return Quote{
		PremiumPerShare:    util.RoundToTick(premiumPerShare, 0.01),
		PremiumPerContract: util.RoundToTick(premiumPerShare*float64(optionspricing.Multiplier), 0.01),
		IntrinsicValue:     util.RoundToTick(intrinsic, 0.01),
		TimeValue:          util.RoundToTick(timeValue, 0.01),
		DaysToExpiry:       util.RoundToTick(dte, 0.1),
		ImpliedVol:         iv,
	}, nil
}

