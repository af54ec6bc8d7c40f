package marketdata

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotEnoughData = errors.New("not enough candles for indicator")

// RSI computes Wilder's relative strength index over the closing prices of
// an oldest-first candle series. Needs at least period+1 candles.
func RSI(candles []Candle, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, errors.New("rsi period must be positive")
	}
	if len(candles) < period+1 {
		return decimal.Zero, ErrNotEnoughData
	}

	var avgGain, avgLoss decimal.Decimal
	for i := 1; i <= period; i++ {
		change := candles[i].Close.Sub(candles[i-1].Close)
		if change.IsPositive() {
			avgGain = avgGain.Add(change)
		} else {
			avgLoss = avgLoss.Add(change.Neg())
		}
	}
	p := decimal.NewFromInt(int64(period))
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)

	// Wilder smoothing over the remainder of the series.
	pMinusOne := decimal.NewFromInt(int64(period - 1))
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close.Sub(candles[i-1].Close)
		gain, loss := decimal.Zero, decimal.Zero
		if change.IsPositive() {
			gain = change
		} else {
			loss = change.Neg()
		}
		avgGain = avgGain.Mul(pMinusOne).Add(gain).Div(p)
		avgLoss = avgLoss.Mul(pMinusOne).Add(loss).Div(p)
	}

	hundred := decimal.NewFromInt(100)
	if avgLoss.IsZero() {
		return hundred, nil
	}
	rs := avgGain.Div(avgLoss)
	one := decimal.NewFromInt(1)
	return hundred.Sub(hundred.Div(one.Add(rs))), nil
}
