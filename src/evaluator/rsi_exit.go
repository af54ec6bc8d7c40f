package evaluator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"autotrader/src/marketdata"
)

// RSIExitRule proposes a sell when the symbol's RSI crosses into overbought
// territory.
type RSIExitRule struct {
	source     marketdata.CandleSource
	period     int
	limit      int
	overbought decimal.Decimal
}

func NewRSIExitRule(source marketdata.CandleSource, config marketdata.Config) *RSIExitRule {
	return &RSIExitRule{
		source:     source,
		period:     config.RSIPeriod,
		limit:      config.Limit,
		overbought: decimal.NewFromFloat(config.RSIOverbought),
	}
}

func (r *RSIExitRule) ShouldExit(symbol string) (bool, string, error) {
	candles, err := r.source.RecentCandles(symbol, r.limit)
	if err != nil {
		return false, "", err
	}
	rsi, err := marketdata.RSI(candles, r.period)
	if err != nil {
		return false, "", err
	}
	if rsi.LessThan(r.overbought) {
		return false, "", nil
	}
	return true, fmt.Sprintf("RSI %s overbought (limit %s)",
		rsi.StringFixed(1), r.overbought.StringFixed(0)), nil
}
