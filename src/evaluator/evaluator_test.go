package evaluator

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"autotrader/src/model"
)

type exitFunc func(symbol string) (bool, string, error)

func (f exitFunc) ShouldExit(symbol string) (bool, string, error) { return f(symbol) }

var neverExit = exitFunc(func(string) (bool, string, error) { return false, "", nil })

func testParams() Params {
	return Params{
		InitialBudget:  decimal.NewFromInt(1000),
		MaxPositionPct: decimal.NewFromInt(33),
		MaxHoldings:    2,
		MinHold:        48 * time.Hour,
	}
}

func unpausedState(cash int64) *model.TradingState {
	return &model.TradingState{ID: model.TradingStateID, Cash: decimal.NewFromInt(cash)}
}

func TestSizing(t *testing.T) {
	e := New(testParams(), neverExit)

	tests := []struct {
		name  string
		cash  int64
		price string
		want  int64
	}{
		{"budget caps the position", 1000, "10", 33},  // 33% of 1000 = 330
		{"cash below budget caps it", 100, "10", 10},
		{"whole shares only", 1000, "47", 7},          // 330/47 = 7.02
		{"price above budget", 1000, "400", 0},
		{"zero price", 1000, "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.size(decimal.NewFromInt(tt.cash), decimal.RequireFromString(tt.price))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateBuys(t *testing.T) {
	e := New(testParams(), neverExit)
	ranked := []Ranked{
		{Symbol: "AAPL", Price: decimal.NewFromInt(10)},
		{Symbol: "MSFT", Price: decimal.NewFromInt(20)},
		{Symbol: "NVDA", Price: decimal.NewFromInt(30)},
	}

	t.Run("fills available slots in rank order", func(t *testing.T) {
		out := e.Evaluate(ranked, nil, unpausedState(1000))
		require.Len(t, out, 2)
		require.Equal(t, "AAPL", out[0].Symbol)
		require.Equal(t, model.SideBuy, out[0].Side)
		require.EqualValues(t, 33, out[0].Quantity)
		require.Equal(t, "MSFT", out[1].Symbol)
	})

	t.Run("held symbols are skipped", func(t *testing.T) {
		positions := []model.Position{{
			Symbol: "AAPL", Quantity: 10, Status: model.PositionStatusOpen,
			EntryTime: time.Now().Add(-time.Hour),
		}}
		out := e.Evaluate(ranked, positions, unpausedState(1000))
		require.Len(t, out, 1)
		require.Equal(t, "MSFT", out[0].Symbol)
	})

	t.Run("closing positions still occupy slots", func(t *testing.T) {
		positions := []model.Position{
			{Symbol: "AAPL", Quantity: 10, Status: model.PositionStatusOpen, EntryTime: time.Now().Add(-time.Hour)},
			{Symbol: "MSFT", Quantity: 10, Status: model.PositionStatusClosing, EntryTime: time.Now().Add(-time.Hour)},
		}
		out := e.Evaluate(ranked, positions, unpausedState(1000))
		require.Empty(t, out)
	})

	t.Run("paused state produces no buys", func(t *testing.T) {
		state := unpausedState(1000)
		state.Paused = true
		out := e.Evaluate(ranked, nil, state)
		require.Empty(t, out)
	})

	t.Run("later candidates see remaining cash", func(t *testing.T) {
		out := e.Evaluate(ranked, nil, unpausedState(400))
		// First buy consumes 330 of the 400, leaving 70 for the second.
		require.Len(t, out, 2)
		require.EqualValues(t, 33, out[0].Quantity)
		require.Equal(t, "MSFT", out[1].Symbol)
		require.EqualValues(t, 3, out[1].Quantity)
	})
}

func TestEvaluateSells(t *testing.T) {
	now := time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)
	held := []model.Position{{
		Symbol:     "AAPL",
		Quantity:   20,
		Status:     model.PositionStatusOpen,
		EntryTime:  now.Add(-72 * time.Hour),
		EntryPrice: decimal.NewFromInt(10),
	}}

	t.Run("deteriorated position proposes a sell", func(t *testing.T) {
		exit := exitFunc(func(string) (bool, string, error) { return true, "RSI 75.0 overbought (limit 70)", nil })
		e := New(testParams(), exit).WithClock(func() time.Time { return now })
		out := e.Evaluate(nil, held, unpausedState(500))
		require.Len(t, out, 1)
		require.Equal(t, model.SideSell, out[0].Side)
		require.EqualValues(t, 20, out[0].Quantity)
		require.Contains(t, out[0].Reason, "overbought")
	})

	t.Run("min hold suppresses the proposal", func(t *testing.T) {
		exit := exitFunc(func(string) (bool, string, error) { return true, "deteriorated", nil })
		fresh := []model.Position{{
			Symbol: "AAPL", Quantity: 20, Status: model.PositionStatusOpen,
			EntryTime: now.Add(-time.Hour),
		}}
		e := New(testParams(), exit).WithClock(func() time.Time { return now })
		require.Empty(t, e.Evaluate(nil, fresh, unpausedState(500)))
	})

	t.Run("exit rule failure degrades to no proposal", func(t *testing.T) {
		exit := exitFunc(func(string) (bool, string, error) { return false, "", errors.New("feed down") })
		e := New(testParams(), exit).WithClock(func() time.Time { return now })
		require.Empty(t, e.Evaluate(nil, held, unpausedState(500)))
	})

	t.Run("closing position is not re-proposed", func(t *testing.T) {
		exit := exitFunc(func(string) (bool, string, error) { return true, "deteriorated", nil })
		closing := []model.Position{{
			Symbol: "AAPL", Quantity: 20, Status: model.PositionStatusClosing,
			EntryTime: now.Add(-72 * time.Hour),
		}}
		e := New(testParams(), exit).WithClock(func() time.Time { return now })
		require.Empty(t, e.Evaluate(nil, closing, unpausedState(500)))
	})
}
