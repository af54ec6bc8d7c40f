package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"autotrader/src/approval"
	"autotrader/src/brokerage"
	"autotrader/src/database"
	"autotrader/src/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db      *gorm.DB
	broker  *brokerage.PaperClient
	channel *approval.MockChannel
	engine  *Engine
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(database.Config{
		DatabaseURL:  filepath.Join(t.TempDir(), "test.db"),
		GormLogLevel: 1,
	}, decimal.NewFromInt(1000))
	require.NoError(t, err)

	broker := brokerage.NewPaperClient()
	channel := approval.NewMockChannel()
	clock := &testClock{now: time.Date(2025, time.March, 4, 15, 0, 0, 0, time.UTC)}

	params := Params{
		MaxHoldings:      2,
		ApprovalTimeout:  15 * time.Minute,
		MinHold:          48 * time.Hour,
		StopLossPct:      decimal.NewFromInt(-5),
		TakeProfitPct:    decimal.NewFromInt(10),
		MaxDailyTrades:   4,
		MaxOrderAttempts: 3,
		MaxPollAttempts:  10,
		RetryBase:        time.Millisecond,
		RetryMax:         4 * time.Millisecond,
		Location:         time.UTC,
	}
	eng := New(db, broker, channel, channel, params).WithClock(clock.Now)

	return &fixture{db: db, broker: broker, channel: channel, engine: eng, clock: clock}
}

func (f *fixture) approve(t *testing.T, signalID uint) {
	t.Helper()
	require.True(t, f.channel.Respond(signalID, approval.DecisionApproved))
	resp := <-f.channel.Responses()
	require.NoError(t, f.engine.HandleResponse(context.Background(), resp))
	f.engine.Wait()
}

func (f *fixture) signal(t *testing.T, id uint) *model.Signal {
	t.Helper()
	var signal model.Signal
	require.NoError(t, f.db.First(&signal, id).Error)
	return &signal
}

func (f *fixture) position(t *testing.T, symbol string) *model.Position {
	t.Helper()
	var position model.Position
	require.NoError(t, f.db.Where("symbol = ?", symbol).First(&position).Error)
	return &position
}

func (f *fixture) state(t *testing.T) *model.TradingState {
	t.Helper()
	var state model.TradingState
	require.NoError(t, f.db.First(&state, model.TradingStateID).Error)
	return &state
}

func (f *fixture) trades(t *testing.T, signalID uint) []model.Trade {
	t.Helper()
	var trades []model.Trade
	require.NoError(t, f.db.Where("signal_id = ?", signalID).Order("id ASC").Find(&trades).Error)
	return trades
}

func TestBuyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.broker.SetQuote("AAPL", decimal.NewFromInt(10))

	signal, err := f.engine.Submit(ctx, Candidate{
		Symbol:   "AAPL",
		Side:     model.SideBuy,
		Quantity: 20,
		Price:    decimal.NewFromInt(10),
		Reason:   "test entry",
	})
	require.NoError(t, err)
	require.Equal(t, model.SignalStatusPendingApproval, signal.Status)
	require.NotEmpty(t, signal.ApprovalID)
	require.Equal(t, []uint{signal.ID}, f.channel.SentSignalIDs())

	f.approve(t, signal.ID)

	got := f.signal(t, signal.ID)
	require.Equal(t, model.SignalStatusExecuted, got.Status)
	require.NotEmpty(t, got.ClientOrderID)

	trades := f.trades(t, signal.ID)
	require.Len(t, trades, 1)
	require.Equal(t, model.TradeStatusFilled, trades[0].Status)
	require.EqualValues(t, 20, trades[0].Quantity)

	pos := f.position(t, "AAPL")
	require.Equal(t, model.PositionStatusOpen, pos.Status)
	require.EqualValues(t, 20, pos.Quantity)
	require.True(t, pos.StopLossPrice.Equal(decimal.RequireFromString("9.5")),
		"stop loss %s", pos.StopLossPrice)
	require.True(t, pos.TakeProfitPrice.Equal(decimal.NewFromInt(11)),
		"take profit %s", pos.TakeProfitPrice)

	require.True(t, f.state(t).Cash.Equal(decimal.NewFromInt(800)),
		"cash %s", f.state(t).Cash)
}

func TestSubmitInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)
	f.broker.SetQuote("MSFT", ten)
	f.broker.SetQuote("NVDA", ten)

	buy := func(symbol string) Candidate {
		return Candidate{Symbol: symbol, Side: model.SideBuy, Quantity: 10, Price: ten}
	}
	open := func(symbol string) {
		signal, err := f.engine.Submit(ctx, buy(symbol))
		require.NoError(t, err)
		f.approve(t, signal.ID)
	}

	t.Run("sell without position", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, Candidate{
			Symbol: "AAPL", Side: model.SideSell, Quantity: 10, Price: ten})
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})

	open("AAPL")

	t.Run("duplicate symbol", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, buy("AAPL"))
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})

	t.Run("min hold", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, Candidate{
			Symbol: "AAPL", Side: model.SideSell, Quantity: 10, Price: ten})
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})

	t.Run("oversell", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, Candidate{
			Symbol: "AAPL", Side: model.SideSell, Quantity: 99, Price: ten})
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})

	open("MSFT")

	t.Run("max holdings", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, buy("NVDA"))
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})

	t.Run("insufficient cash", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, Candidate{
			Symbol: "NVDA", Side: model.SideBuy, Quantity: 100000, Price: ten})
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})

	t.Run("quantity must be positive", func(t *testing.T) {
		_, err := f.engine.Submit(ctx, Candidate{
			Symbol: "NVDA", Side: model.SideBuy, Quantity: 0, Price: ten})
		require.True(t, IsInvariantViolation(err), "got %v", err)
	})
}

func TestBuyRejectedWhilePaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Model(&model.TradingState{}).
		Where("id = ?", model.TradingStateID).
		Updates(map[string]interface{}{"paused": true, "pause_reason": model.PauseReasonMaxDrawdown}).Error)

	_, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 10, Price: decimal.NewFromInt(10)})
	require.True(t, IsInvariantViolation(err), "got %v", err)

	// No signal row may exist for a rejected candidate.
	var count int64
	require.NoError(t, f.db.Model(&model.Signal{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestForcedSellBypassesApprovalAndMinHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)

	signal, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 20, Price: ten})
	require.NoError(t, err)
	f.approve(t, signal.ID)

	// Position was opened moments ago; a forced sell must still go through.
	f.broker.SetQuote("AAPL", decimal.RequireFromString("9.49"))
	pos := f.position(t, "AAPL")
	require.NoError(t, f.engine.SubmitForcedSell(ctx, pos, decimal.RequireFromString("9.49"), "stop-loss"))
	f.engine.Wait()

	var signals []model.Signal
	require.NoError(t, f.db.Where("side = ?", model.SideSell).Find(&signals).Error)
	require.Len(t, signals, 1)
	require.True(t, signals[0].Forced)
	require.Equal(t, model.SignalStatusExecuted, signals[0].Status)
	// Forced signals never go to the approval channel.
	require.Equal(t, []uint{signal.ID}, f.channel.SentSignalIDs())

	pos = f.position(t, "AAPL")
	require.Equal(t, model.PositionStatusClosed, pos.Status)
	require.Zero(t, pos.Quantity)
}

func TestPartialFills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)
	f.broker.ScriptNextOrder(12, 20)

	signal, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 20, Price: ten})
	require.NoError(t, err)
	f.approve(t, signal.ID)

	require.Equal(t, model.SignalStatusExecuted, f.signal(t, signal.ID).Status)

	trades := f.trades(t, signal.ID)
	require.Len(t, trades, 2)
	require.EqualValues(t, 12, trades[0].Quantity)
	require.EqualValues(t, 8, trades[1].Quantity)
	require.Equal(t, model.TradeStatusPartial, trades[0].Status)
	require.Equal(t, model.TradeStatusPartial, trades[1].Status)

	require.EqualValues(t, 20, f.position(t, "AAPL").Quantity)
	require.True(t, f.state(t).Cash.Equal(decimal.NewFromInt(800)),
		"cash %s", f.state(t).Cash)
}

func TestExpiryBeatsLateApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	signal, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 10, Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	require.NoError(t, f.engine.SweepExpired(ctx))
	require.Equal(t, model.SignalStatusExpired, f.signal(t, signal.ID).Status)

	// A late approval is discarded; the signal never executes.
	require.True(t, f.channel.Respond(signal.ID, approval.DecisionApproved))
	resp := <-f.channel.Responses()
	require.NoError(t, f.engine.HandleResponse(ctx, resp))
	f.engine.Wait()

	require.Equal(t, model.SignalStatusExpired, f.signal(t, signal.ID).Status)
	require.Empty(t, f.trades(t, signal.ID))
}

func TestExpiredSellReleasesPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)

	buy, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 10, Price: ten})
	require.NoError(t, err)
	f.approve(t, buy.ID)

	f.clock.Advance(72 * time.Hour)
	sell, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideSell, Quantity: 10, Price: ten})
	require.NoError(t, err)
	require.Equal(t, model.PositionStatusClosing, f.position(t, "AAPL").Status)

	f.clock.Advance(16 * time.Minute)
	require.NoError(t, f.engine.SweepExpired(ctx))

	require.Equal(t, model.SignalStatusExpired, f.signal(t, sell.ID).Status)
	require.Equal(t, model.PositionStatusOpen, f.position(t, "AAPL").Status)
}

func TestRejectedSellReleasesPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)

	buy, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 10, Price: ten})
	require.NoError(t, err)
	f.approve(t, buy.ID)

	f.clock.Advance(72 * time.Hour)
	sell, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideSell, Quantity: 10, Price: ten})
	require.NoError(t, err)

	require.True(t, f.channel.Respond(sell.ID, approval.DecisionRejected))
	resp := <-f.channel.Responses()
	require.NoError(t, f.engine.HandleResponse(ctx, resp))
	f.engine.Wait()

	require.Equal(t, model.SignalStatusRejected, f.signal(t, sell.ID).Status)
	require.Equal(t, model.PositionStatusOpen, f.position(t, "AAPL").Status)
}

func TestRecoveryOrderAlreadyFilled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)

	// Simulate a crash after the submit reached the brokerage: the order
	// exists and filled, but no trade or position was recorded locally.
	require.NoError(t, f.broker.SubmitOrder(ctx, "order-1", "AAPL", model.SideBuy, 20))
	signal := &model.Signal{
		Symbol:        "AAPL",
		Side:          model.SideBuy,
		Quantity:      20,
		Price:         ten,
		Status:        model.SignalStatusExecuting,
		ClientOrderID: "order-1",
	}
	require.NoError(t, f.db.Create(signal).Error)

	require.NoError(t, f.engine.Recover(ctx))
	f.engine.Wait()

	require.Equal(t, model.SignalStatusExecuted, f.signal(t, signal.ID).Status)
	trades := f.trades(t, signal.ID)
	require.Len(t, trades, 1)
	require.EqualValues(t, 20, trades[0].Quantity)
	require.EqualValues(t, 20, f.position(t, "AAPL").Quantity)
}

func TestRecoveryOrderNeverArrived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)

	// Crash happened between the EXECUTING write and the submit call: the
	// brokerage has never seen the order, so re-submitting is safe.
	signal := &model.Signal{
		Symbol:        "AAPL",
		Side:          model.SideBuy,
		Quantity:      15,
		Price:         ten,
		Status:        model.SignalStatusExecuting,
		ClientOrderID: "order-2",
	}
	require.NoError(t, f.db.Create(signal).Error)

	require.NoError(t, f.engine.Recover(ctx))
	f.engine.Wait()

	require.Equal(t, model.SignalStatusExecuted, f.signal(t, signal.ID).Status)
	require.EqualValues(t, 15, f.position(t, "AAPL").Quantity)

	qty, err := f.broker.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.EqualValues(t, 15, qty)
}

func TestDailyTradeCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, f.db.Create(&model.Trade{
			SignalID: uint(100 + i),
			Symbol:   "XYZ",
			Side:     model.SideBuy,
			Quantity: 1,
			FilledAt: now.Add(-time.Hour),
			Status:   model.TradeStatusFilled,
		}).Error)
	}

	_, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 1, Price: decimal.NewFromInt(10)})
	require.True(t, IsInvariantViolation(err), "got %v", err)
}

func TestExecutedQuantityAlwaysMatchesSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := decimal.NewFromInt(10)
	f.broker.SetQuote("AAPL", ten)
	f.broker.ScriptNextOrder(5, 11, 20)

	signal, err := f.engine.Submit(ctx, Candidate{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: 20, Price: ten})
	require.NoError(t, err)
	f.approve(t, signal.ID)

	require.Equal(t, model.SignalStatusExecuted, f.signal(t, signal.ID).Status)

	var sum int64
	require.NoError(t, f.db.Model(&model.Trade{}).
		Select("SUM(quantity)").
		Where("signal_id = ?", signal.ID).
		Scan(&sum).Error)
	require.EqualValues(t, signal.Quantity, sum)
}
