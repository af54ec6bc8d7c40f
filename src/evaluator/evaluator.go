package evaluator

import (
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/engine"
	"autotrader/src/model"
	"autotrader/src/risk"
)

// Params is the resolved sizing configuration.
type Params struct {
	InitialBudget  decimal.Decimal
	MaxPositionPct decimal.Decimal

	MaxHoldings int
	MinHold     time.Duration
}

// Ranked is one externally-ranked buy candidate with its current price.
type Ranked struct {
	Symbol string
	Price  decimal.Decimal
	Reason string
}

// ExitRule decides whether a held symbol's screening criteria have
// deteriorated enough to propose a sell.
type ExitRule interface {
	ShouldExit(symbol string) (exit bool, reason string, err error)
}

// Evaluator turns ranked candidates and current holdings into candidate
// signals. It holds no persistent state; every proposal goes through the
// lifecycle engine's submit, which re-checks the invariants transactionally.
type Evaluator struct {
	params Params
	exit   ExitRule
	now    func() time.Time
}

func New(params Params, exit ExitRule) *Evaluator {
	return &Evaluator{
		params: params,
		exit:   exit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the evaluator clock. Useful for tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate produces candidate signals for one scan cycle. A failing exit
// rule degrades to "no sell proposal for that symbol".
func (e *Evaluator) Evaluate(ranked []Ranked, positions []model.Position, state *model.TradingState) []engine.Candidate {
	var out []engine.Candidate

	held := make(map[string]*model.Position, len(positions))
	active := 0
	for i := range positions {
		pos := &positions[i]
		if pos.Status == model.PositionStatusOpen || pos.Status == model.PositionStatusClosing {
			held[pos.Symbol] = pos
			active++
		}
	}

	if !state.Paused {
		slots := e.params.MaxHoldings - active
		cash := state.Cash
		for _, cand := range ranked {
			if slots <= 0 {
				break
			}
			if _, ok := held[cand.Symbol]; ok {
				continue
			}
			qty := e.size(cash, cand.Price)
			if qty == 0 {
				logger.WithField("symbol", cand.Symbol).
					Debug("Budget does not cover one share, skipping")
				continue
			}
			out = append(out, engine.Candidate{
				Symbol:   cand.Symbol,
				Side:     model.SideBuy,
				Reason:   cand.Reason,
				Quantity: qty,
				Price:    cand.Price,
				Actor:    model.ActorEvaluator,
			})
			cash = cash.Sub(cand.Price.Mul(decimal.NewFromInt(qty)))
			slots--
		}
	}

	now := e.now()
	for symbol, pos := range held {
		if pos.Status != model.PositionStatusOpen {
			continue
		}
		if !risk.MinHoldElapsed(pos.EntryTime, now, e.params.MinHold) {
			continue
		}
		exit, reason, err := e.exit.ShouldExit(symbol)
		if err != nil {
			logger.WithError(err).WithField("symbol", symbol).
				Warn("Exit rule failed, no sell proposal this cycle")
			continue
		}
		if !exit {
			continue
		}
		out = append(out, engine.Candidate{
			Symbol:   symbol,
			Side:     model.SideSell,
			Reason:   reason,
			Quantity: pos.Quantity,
			Price:    pos.EntryPrice,
			Actor:    model.ActorEvaluator,
		})
	}
	return out
}

// size returns the whole-share quantity the per-position budget affords.
func (e *Evaluator) size(cash, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 0
	}
	budget := e.params.InitialBudget.
		Mul(e.params.MaxPositionPct).
		Div(decimal.NewFromInt(100))
	if cash.LessThan(budget) {
		budget = cash
	}
	return budget.Div(price).Floor().IntPart()
}
