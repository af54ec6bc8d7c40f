package risk

import (
	"time"

	"autotrader/src/model"
)

// PDTMaxDayTrades is the regulatory ceiling on same-day round-trips inside
// the rolling window.
const PDTMaxDayTrades = 3

// PDTWindow approximates five trading days; seven calendar days covers the
// weekend.
const PDTWindow = 7 * 24 * time.Hour

// MinHoldElapsed reports whether a position is past its minimum holding
// period. Forced liquidations bypass this check at the call site.
func MinHoldElapsed(entryTime, now time.Time, minHold time.Duration) bool {
	return now.Sub(entryTime) >= minHold
}

// SameTradingDay reports whether two instants fall on the same calendar day
// in the market timezone. Selling a position opened the same trading day is
// a day trade.
func SameTradingDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// CountDayTrades counts same-day buy/sell round-trips per symbol over the
// given fills.
func CountDayTrades(trades []model.Trade, loc *time.Location) int {
	type key struct {
		symbol string
		day    string
	}

	bought := make(map[key]bool)
	dayTrades := 0
	for i := range trades {
		t := &trades[i]
		k := key{symbol: t.Symbol, day: t.FilledAt.In(loc).Format("2006-01-02")}
		switch t.Side {
		case model.SideBuy:
			bought[k] = true
		case model.SideSell:
			if bought[k] {
				dayTrades++
			}
		}
	}
	return dayTrades
}

// DayTradeLimitReached reports whether the rolling pattern-day-trading
// budget is exhausted.
func DayTradeLimitReached(trades []model.Trade, loc *time.Location) bool {
	return CountDayTrades(trades, loc) >= PDTMaxDayTrades
}
