// Package spotengine routes buy/sell requests to the correct quote source
// and delegates the fake fill to the portfolio ledger. It holds no state of
// its own.
package spotengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/eddiefleurent/tradecore/internal/errkind"
	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
)

const usdtSuffix = "USDT"

// Engine is the Spot Engine component (spec §4.10).
type Engine struct {
	ledger *ledger.Ledger
	quotes quoteprovider.QuoteProvider
}

// New wires the spot engine's dependencies.
func New(l *ledger.Ledger, quotes quoteprovider.QuoteProvider) *Engine {
	return &Engine{ledger: l, quotes: quotes}
}

// requestSymbol builds the symbol to query the quote provider with: crypto
// gets a USDT suffix (unless already present), stock uses the bare ticker.
func requestSymbol(ticker string, assetType ledger.AssetType) string {
	if assetType == ledger.AssetTypeStock {
		return ticker
	}
	if strings.HasSuffix(ticker, usdtSuffix) {
		return ticker
	}
	return ticker + usdtSuffix
}

// resolveAssetType defaults from the portfolio's legacy tickerTypes hint,
// falling back to crypto per spec §3.
func (e *Engine) resolveAssetType(ticker string, assetType *ledger.AssetType) ledger.AssetType {
	if assetType != nil {
		return *assetType
	}
	if hint, ok := e.ledger.TickerType(ticker); ok {
		return hint
	}
	return ledger.AssetTypeCrypto
}

// Result is the tagged outcome of ExecuteBuy/ExecuteSell, carrying the
// last-appended ledger transaction on success (spec §4.10, §6).
type Result struct {
	Success     bool
	Message     string
	Transaction *ledger.Transaction
}

func (e *Engine) lastTransaction(ticker string) *ledger.Transaction {
	txs := e.ledger.Transactions(ticker, 1)
	if len(txs) == 0 {
		return nil
	}
	return &txs[0]
}

func (e *Engine) fetchPrice(ctx context.Context, ticker string, assetType ledger.AssetType) (float64, error) {
	symbol := requestSymbol(ticker, assetType)
	quote, err := e.quotes.FetchQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if quote.Price <= 0 {
		return 0, fmt.Errorf("%w: quote returned non-positive price for %s", errkind.ErrInvalidParam, symbol)
	}
	return quote.Price, nil
}

// ExecuteBuy fetches a live quote and delegates to ledger.BuySpot.
func (e *Engine) ExecuteBuy(ctx context.Context, ticker string, quantity float64, reasoning string, assetType *ledger.AssetType) (Result, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	at := e.resolveAssetType(ticker, assetType)

	price, err := e.fetchPrice(ctx, ticker, at)
	if err != nil {
		return Result{Success: false, Message: "failed to fetch quote"}, err
	}
	res, err := e.ledger.BuySpot(ticker, quantity, price, reasoning, at)
	if err != nil {
		return Result{Success: res.Success, Message: res.Message}, err
	}
	return Result{Success: res.Success, Message: res.Message, Transaction: e.lastTransaction(ticker)}, nil
}

// ExecuteSell fetches a live quote and delegates to ledger.SellSpot.
func (e *Engine) ExecuteSell(ctx context.Context, ticker string, quantity float64, reasoning string, assetType *ledger.AssetType) (Result, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	at := e.resolveAssetType(ticker, assetType)

	price, err := e.fetchPrice(ctx, ticker, at)
	if err != nil {
		return Result{Success: false, Message: "failed to fetch quote"}, err
	}
	res, err := e.ledger.SellSpot(ticker, quantity, price, reasoning)
	if err != nil {
		return Result{Success: res.Success, Message: res.Message}, err
	}
	return Result{Success: res.Success, Message: res.Message, Transaction: e.lastTransaction(ticker)}, nil
}
