// Package optionschain builds expiry-date calendars and strike grids, and
// prices a full chain from a single underlying quote. Pure functions, no
// I/O — callers supply the underlying price and current time.
package optionschain

import (
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/tradecore/internal/optionspricing"
	"github.com/eddiefleurent/tradecore/internal/util"
)

// Expiries returns the standard expiry calendar relative to now: this
// week's Friday (skipped if less than a day away), next Friday, this
// month's third Friday (if strictly in the future), and next month's third
// Friday. Deduplicated and sorted ascending, formatted YYYY-MM-DD.
func Expiries(now time.Time) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(d time.Time) {
		s := d.Format("2006-01-02")
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	thisFriday := nextWeekday(now, time.Friday)
	if thisFriday.Sub(now) >= 24*time.Hour {
		add(thisFriday)
	}
	add(nextWeekday(thisFriday.AddDate(0, 0, 1), time.Friday))

	if thirdFriday := thirdFridayOf(now.Year(), now.Month()); thirdFriday.After(now) {
		add(thirdFriday)
	}
	nextMonth := now.AddDate(0, 1, 0)
	add(thirdFridayOf(nextMonth.Year(), nextMonth.Month()))

	sort.Strings(out)
	return out
}

// nextWeekday returns the next date on or after from that falls on wd.
func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	d := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// thirdFridayOf returns the third Friday of the given month.
func thirdFridayOf(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstFriday := nextWeekday(first, time.Friday)
	return firstFriday.AddDate(0, 0, 14)
}

// strikeStep returns the strike spacing for a given underlying price tier.
func strikeStep(price float64) float64 {
	switch {
	case price < 50:
		return 1
	case price < 200:
		return 5
	case price < 500:
		return 10
	default:
		return 25
	}
}

// Strikes generates the strike grid centered on price: 21 offsets in
// [-10, 10] multiples of the tier step, with non-positive strikes dropped.
func Strikes(price float64) []float64 {
	step := strikeStep(price)
	center := math.Round(price/step) * step

	out := make([]float64, 0, 21)
	for i := -10; i <= 10; i++ {
		strike := center + float64(i)*step
		if strike <= 0 {
			continue
		}
		out = append(out, strike)
	}
	return out
}

// StrikeQuote is one strike's priced row within an expiry.
type StrikeQuote struct {
	Strike                 float64 `json:"strike"`
	CallPremium            float64 `json:"call_premium"`
	PutPremium             float64 `json:"put_premium"`
	CallPremiumPerContract float64 `json:"call_premium_per_contract"`
	PutPremiumPerContract  float64 `json:"put_premium_per_contract"`
}

// ExpiryChain is one expiry's full strike ladder.
type ExpiryChain struct {
	Expiry  string        `json:"expiry"`
	Strikes []StrikeQuote `json:"strikes"`
}

// perContract converts a per-share premium to a per-contract dollar amount.
func perContract(premiumPerShare float64) float64 {
	return math.Round(premiumPerShare*optionspricing.Multiplier*100) / 100
}

// Build prices the full chain for ticker at the given underlying price and
// moment in time.
func Build(ticker string, underlyingPrice float64, now time.Time) []ExpiryChain {
	iv := optionspricing.ImpliedVol(ticker)
	strikes := Strikes(underlyingPrice)

	chains := make([]ExpiryChain, 0, len(Expiries(now)))
	for _, expiry := range Expiries(now) {
		dte, err := optionspricing.DaysToExpiryClamped(expiry, now)
		if err != nil {
			continue
		}
		rows := make([]StrikeQuote, 0, len(strikes))
		for _, strike := range strikes {
			callPremium := util.RoundToTick(optionspricing.Premium(underlyingPrice, strike, optionspricing.Call, iv, dte), 0.01)
			putPremium := util.RoundToTick(optionspricing.Premium(underlyingPrice, strike, optionspricing.Put, iv, dte), 0.01)
			rows = append(rows, StrikeQuote{
				Strike:                 strike,
				CallPremium:            callPremium,
				PutPremium:             putPremium,
				CallPremiumPerContract: perContract(callPremium),
				PutPremiumPerContract:  perContract(putPremium),
			})
		}
		chains = append(chains, ExpiryChain{Expiry: expiry, Strikes: rows})
	}
	return chains
}
