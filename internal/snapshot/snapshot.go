// Package snapshot aggregates the ledger and the three product engines into
// a single read model, the way the teacher's dashboard assembles
// DashboardData from storage + broker before it ever reaches a template.
package snapshot

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/tradecore/internal/futuresengine"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/optionsengine"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
)

const usdtSuffix = "USDT"

// SpotHolding is one ticker's valued spot position, enriched with thesis
// context and recent activity.
type SpotHolding struct {
	Ticker       string               `json:"ticker"`
	AssetClass   ledger.AssetClass    `json:"asset_class"`
	Quantity     float64              `json:"quantity"`
	AveragePrice float64              `json:"average_price"`
	MarketValue  float64              `json:"market_value"`
	CostBasis    float64              `json:"cost_basis"`
	Pnl          float64              `json:"pnl"`
	PnlPercent   float64              `json:"pnl_percent"`
	Thesis       string               `json:"thesis,omitempty"`
	Context      string               `json:"context,omitempty"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// PositionView is the common shape used for the merged, sorted-by-|pnl|
// cross-product position list.
type PositionView struct {
	Kind   string  `json:"kind"` // "spot" | "futures" | "options"
	ID     string  `json:"id"`
	Ticker string  `json:"ticker"`
	Pnl    float64 `json:"pnl"`
}

// Snapshot is the getEnrichedSnapshot result (spec §4.11).
type Snapshot struct {
	Cash             float64                  `json:"cash"`
	SpotHoldings     []SpotHolding            `json:"spot_holdings"`
	FuturesPositions []futuresengine.Position `json:"futures_positions"`
	FuturesAccount   futuresengine.Account    `json:"futures_account"`
	OptionsPositions []optionsengine.Position `json:"options_positions"`
	TotalEquity      float64                  `json:"total_equity"`
	AllPositions     []PositionView           `json:"all_positions"`
	DayPnl           float64                  `json:"day_pnl"`
	DayPnlPercent    float64                  `json:"day_pnl_percent"`
}

// Aggregator builds Snapshot on demand. It holds no state of its own beyond
// the handles it was wired with at the composition root.
type Aggregator struct {
	ledger       *ledger.Ledger
	futures      *futuresengine.Engine
	options      *optionsengine.Engine
	cryptoQuotes quoteprovider.QuoteProvider
	stockQuotes  quoteprovider.QuoteProvider
}

// New wires the aggregator's dependencies. futures/options may be nil if
// those product lines are disabled for this deployment.
func New(l *ledger.Ledger, futures *futuresengine.Engine, options *optionsengine.Engine, cryptoQuotes, stockQuotes quoteprovider.QuoteProvider) *Aggregator {
	return &Aggregator{
		ledger:       l,
		futures:      futures,
		options:      options,
		cryptoQuotes: cryptoQuotes,
		stockQuotes:  stockQuotes,
	}
}

// Build assembles the enriched snapshot per spec §4.11, steps 1-7.
func (a *Aggregator) Build(ctx context.Context) Snapshot {
	holdings := a.ledger.Holdings()

	var cryptoTickers, stockTickers []string
	for ticker, h := range holdings {
		if h.AssetClass == ledger.AssetCryptoSpot {
			cryptoTickers = append(cryptoTickers, ticker)
		} else {
			stockTickers = append(stockTickers, ticker)
		}
	}

	prices := a.bulkFetch(ctx, cryptoTickers, true, a.cryptoQuotes)
	for k, v := range a.bulkFetch(ctx, stockTickers, false, a.stockQuotes) {
		prices[k] = v
	}

	spotHoldings, spotEquity := a.buildSpotHoldings(holdings, prices)

	var futuresPositions []futuresengine.Position
	var futuresAccount futuresengine.Account
	if a.futures != nil {
		futuresPositions = a.futures.GetPositions(ctx)
		futuresAccount = a.futures.GetAccount(ctx)
	}

	var optionsPositions []optionsengine.Position
	if a.options != nil {
		optionsPositions = a.options.GetPositions(ctx)
	}

	var optionsValue float64
	for _, p := range optionsPositions {
		optionsValue += p.CurrentValue
	}

	cash := a.ledger.Cash()
	totalEquity := cash + spotEquity + futuresAccount.TotalMarginUsed + futuresAccount.TotalUnrealizedPnl + optionsValue

	allPositions := mergePositions(spotHoldings, futuresPositions, optionsPositions)

	dayPnl, dayPnlPercent := a.dayPnl(totalEquity)
	_ = a.ledger.RecordDailySnapshot(totalEquity) // fire-and-forget per spec §4.11 step 7

	return Snapshot{
		Cash:             cash,
		SpotHoldings:     spotHoldings,
		FuturesPositions: futuresPositions,
		FuturesAccount:   futuresAccount,
		OptionsPositions: optionsPositions,
		TotalEquity:      totalEquity,
		AllPositions:     allPositions,
		DayPnl:           dayPnl,
		DayPnlPercent:    dayPnlPercent,
	}
}

// bulkFetch resolves a live price per ticker, tolerating per-source
// failures by falling back to the holding's average cost (handled by the
// caller via GetPortfolioValue-style defaulting downstream).
func (a *Aggregator) bulkFetch(ctx context.Context, tickers []string, crypto bool, provider quoteprovider.QuoteProvider) map[string]float64 {
	prices := make(map[string]float64, len(tickers))
	if len(tickers) == 0 || provider == nil {
		return prices
	}

	symbols := make([]string, len(tickers))
	for i, t := range tickers {
		symbols[i] = requestSymbol(t, crypto)
	}

	quotes, err := provider.FetchQuotes(ctx, symbols)
	if err != nil {
		return prices
	}
	for i, q := range quotes {
		if q.Price > 0 {
			prices[tickers[i]] = q.Price
		}
	}
	return prices
}

func requestSymbol(ticker string, crypto bool) string {
	if !crypto {
		return ticker
	}
	if strings.HasSuffix(ticker, usdtSuffix) {
		return ticker
	}
	return ticker + usdtSuffix
}

func (a *Aggregator) buildSpotHoldings(holdings map[string]ledger.Holding, prices map[string]float64) ([]SpotHolding, float64) {
	out := make([]SpotHolding, 0, len(holdings))
	var spotEquity float64
	for ticker, h := range holdings {
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			price = h.AveragePrice // tolerate per-source failure: fall back to average cost
		}
		marketValue := h.Quantity * price
		costBasis := h.Quantity * h.AveragePrice
		pnl := marketValue - costBasis
		pnlPercent := 0.0
		if costBasis > 0 {
			pnlPercent = pnl / costBasis * 100
		}
		spotEquity += marketValue

		txs := a.ledger.Transactions(ticker, 10)
		meta := a.ledger.HoldingMeta(ticker)

		out = append(out, SpotHolding{
			Ticker:       ticker,
			AssetClass:   h.AssetClass,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
			MarketValue:  marketValue,
			CostBasis:    costBasis,
			Pnl:          pnl,
			PnlPercent:   pnlPercent,
			Thesis:       meta.Thesis,
			Context:      meta.Context,
			Transactions: txs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, spotEquity
}

func mergePositions(spot []SpotHolding, futures []futuresengine.Position, options []optionsengine.Position) []PositionView {
	all := make([]PositionView, 0, len(spot)+len(futures)+len(options))
	for _, h := range spot {
		all = append(all, PositionView{Kind: "spot", ID: h.Ticker, Ticker: h.Ticker, Pnl: h.Pnl})
	}
	for _, p := range futures {
		all = append(all, PositionView{Kind: "futures", ID: p.ID, Ticker: p.Ticker, Pnl: p.UnrealizedPnl})
	}
	for _, p := range options {
		all = append(all, PositionView{Kind: "options", ID: p.ID, Ticker: p.Contract.Underlying, Pnl: p.UnrealizedPnl})
	}
	sort.Slice(all, func(i, j int) bool { return absF(all[i].Pnl) > absF(all[j].Pnl) })
	return all
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// dayPnl finds the most recent daily snapshot whose date isn't today and
// compares against the current total equity (spec §4.11 step 7).
func (a *Aggregator) dayPnl(totalEquity float64) (float64, float64) {
	today := time.Now().UTC().Format("2006-01-02")
	snapshots := a.ledger.DailySnapshots() // oldest first
	var prevTotal float64
	found := false
	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].Date == today {
			continue
		}
		prevTotal = snapshots[i].TotalValue
		found = true
		break
	}
	if !found {
		return 0, 0
	}
	dayPnl := totalEquity - prevTotal
	dayPnlPercent := 0.0
	if prevTotal != 0 {
		dayPnlPercent = dayPnl / prevTotal * 100
	}
	return dayPnl, dayPnlPercent
}
