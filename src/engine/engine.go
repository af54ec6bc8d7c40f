package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/approval"
	"autotrader/src/brokerage"
	"autotrader/src/model"
	"autotrader/src/repository"
)

// Params is the resolved runtime parameter set of the lifecycle engine.
type Params struct {
	MaxHoldings      int
	ApprovalTimeout  time.Duration
	MinHold          time.Duration
	StopLossPct      decimal.Decimal
	TakeProfitPct    decimal.Decimal
	MaxDailyTrades   int64
	MaxOrderAttempts int
	MaxPollAttempts  int
	RetryBase        time.Duration
	RetryMax         time.Duration
	Location         *time.Location
}

// Candidate is a trade proposal entering the lifecycle. Forced candidates
// come from the risk manager and skip the approval gate and the minimum
// holding period.
type Candidate struct {
	Symbol   string
	Side     string
	Reason   string
	Quantity int64
	Price    decimal.Decimal
	Forced   bool
	Actor    string
}

// Engine drives signals through the approval and execution lifecycle and
// enforces the portfolio invariants at submission time. All persistence goes
// through the repositories; executions run in their own goroutines and are
// tracked so Wait can drain them on shutdown.
type Engine struct {
	db        *gorm.DB
	broker    brokerage.Client
	approvals approval.Channel
	notifier  approval.Notifier
	params    Params

	signals   *repository.SignalRepository
	positions *repository.PositionRepository
	trades    *repository.TradeRepository
	state     *repository.StateRepository

	// Set on a fatal brokerage error; blocks new submissions and new
	// executions until the process is restarted with fixed credentials.
	halted atomic.Bool

	now func() time.Time
	wg  sync.WaitGroup
}

func New(db *gorm.DB, broker brokerage.Client, approvals approval.Channel, notifier approval.Notifier, params Params) *Engine {
	if params.Location == nil {
		params.Location = time.UTC
	}
	return &Engine{
		db:        db,
		broker:    broker,
		approvals: approvals,
		notifier:  notifier,
		params:    params,
		signals:   repository.NewSignalRepository(db),
		positions: repository.NewPositionRepository(db),
		trades:    repository.NewTradeRepository(db),
		state:     repository.NewStateRepository(db),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock. Useful for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Halted reports whether new executions are blocked after a fatal
// brokerage error.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Wait blocks until all in-flight executions have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// SubmitForcedSell is the risk manager's entry point for stop-loss,
// take-profit and drawdown liquidations.
func (e *Engine) SubmitForcedSell(ctx context.Context, position *model.Position, price decimal.Decimal, reason string) error {
	_, err := e.Submit(ctx, Candidate{
		Symbol:   position.Symbol,
		Side:     model.SideSell,
		Reason:   reason,
		Quantity: position.Quantity,
		Price:    price,
		Forced:   true,
		Actor:    model.ActorRiskManager,
	})
	return err
}

func (e *Engine) haltExecutions(err error) {
	if e.halted.CompareAndSwap(false, true) {
		logger.WithError(err).Error("Fatal brokerage error, halting new executions")
		if e.notifier != nil {
			_ = e.notifier.NotifyAlert(context.Background(),
				"Fatal brokerage error, new executions halted: "+err.Error())
		}
	}
}

// priceWithPct applies a signed percentage to a price, rounded to cents.
func priceWithPct(price, pct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	return price.Mul(one.Add(pct.Div(hundred))).Round(2)
}

// startOfDay returns midnight of the instant's day in the market timezone.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
