package optionschain

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpiries_SortedAndDeduped(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) // a Tuesday
	exps := Expiries(now)

	require.NotEmpty(t, exps)
	sorted := append([]string(nil), exps...)
	sort.Strings(sorted)
	require.Equal(t, sorted, exps)

	seen := map[string]bool{}
	for _, e := range exps {
		require.False(t, seen[e], "duplicate expiry %s", e)
		seen[e] = true
	}
}

func TestExpiries_SkipsThisFridayWhenLessThanADayAway(t *testing.T) {
	// A Friday at 23:30 — "this week's Friday" (today) is under a day away.
	now := time.Date(2026, 3, 13, 23, 30, 0, 0, time.UTC)
	exps := Expiries(now)
	require.NotContains(t, exps, "2026-03-13")
}

func TestStrikes_DropsNonPositiveAndUsesTierStep(t *testing.T) {
	strikes := Strikes(100) // step 5, center 100
	require.Len(t, strikes, 21)
	require.Contains(t, strikes, 100.0)
	require.Contains(t, strikes, 50.0)  // 100 - 10*5
	require.Contains(t, strikes, 150.0) // 100 + 10*5

	for _, s := range strikes {
		require.Greater(t, s, 0.0)
	}
}

func TestStrikes_LowPriceDropsBelowZero(t *testing.T) {
	strikes := Strikes(5) // step 1, center 5; offsets down to -5 dropped
	for _, s := range strikes {
		require.Greater(t, s, 0.0)
	}
	require.Less(t, len(strikes), 21)
}

func TestBuild_PerContractIsHundredTimesPerShare(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	chains := Build("AAPL", 150, now)
	require.NotEmpty(t, chains)

	row := chains[0].Strikes[0]
	require.InDelta(t, row.CallPremium*100, row.CallPremiumPerContract, 0.01)
	require.InDelta(t, row.PutPremium*100, row.PutPremiumPerContract, 0.01)
}
