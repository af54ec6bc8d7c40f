package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/approval"
	"autotrader/src/brokerage"
	"autotrader/src/model"
	"autotrader/src/portfolio"
	"autotrader/src/repository"
)

// Params is the resolved risk configuration.
type Params struct {
	// Positive magnitude; a drawdown at or below its negation pauses trading.
	MaxDrawdownPct decimal.Decimal
}

// Submitter accepts forced liquidations. Satisfied by the lifecycle engine.
type Submitter interface {
	SubmitForcedSell(ctx context.Context, position *model.Position, price decimal.Decimal, reason string) error
}

// QuoteCache serves last-seen streamed prices without a network round-trip.
type QuoteCache interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
}

// Manager runs the independent risk cycle: stop-loss/take-profit forced
// liquidation, portfolio snapshotting and the drawdown circuit breaker. It
// never mutates signals or positions directly; everything money-moving goes
// through the Submitter.
type Manager struct {
	positions *repository.PositionRepository
	state     *repository.StateRepository
	portfolio *portfolio.Service
	broker    brokerage.Client
	submitter Submitter
	stream    QuoteCache
	notifier  approval.Notifier
	params    Params
	now       func() time.Time
}

func NewManager(db *gorm.DB, broker brokerage.Client, submitter Submitter, pf *portfolio.Service, params Params) *Manager {
	return &Manager{
		positions: repository.NewPositionRepository(db),
		state:     repository.NewStateRepository(db),
		portfolio: pf,
		broker:    broker,
		submitter: submitter,
		params:    params,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithStream attaches a streamed-price cache consulted before the REST quote.
func (m *Manager) WithStream(stream QuoteCache) *Manager {
	m.stream = stream
	return m
}

// WithNotifier attaches the operator alert channel.
func (m *Manager) WithNotifier(notifier approval.Notifier) *Manager {
	m.notifier = notifier
	return m
}

// RunCycle performs one risk pass. A stuck quote for one symbol degrades to
// skipping that symbol, never to aborting the cycle.
func (m *Manager) RunCycle(ctx context.Context) error {
	positions, err := m.positions.FindOpen(ctx)
	if err != nil {
		return err
	}

	for i := range positions {
		pos := &positions[i]
		price, err := m.priceOf(ctx, pos.Symbol)
		if err != nil {
			logger.WithError(err).WithField("symbol", pos.Symbol).
				Warn("Quote unavailable, skipping risk check for symbol")
			continue
		}
		m.checkPosition(ctx, pos, price)
	}

	snapshot, err := m.portfolio.Snapshot(ctx, m.priceOf)
	if err != nil {
		return err
	}
	return m.checkDrawdown(ctx, snapshot)
}

func (m *Manager) checkPosition(ctx context.Context, pos *model.Position, price decimal.Decimal) {
	var reason string
	switch {
	case price.LessThanOrEqual(pos.StopLossPrice):
		reason = fmt.Sprintf("stop-loss: %s at %s breached %s",
			pos.Symbol, price.StringFixed(2), pos.StopLossPrice.StringFixed(2))
	case price.GreaterThanOrEqual(pos.TakeProfitPrice):
		reason = fmt.Sprintf("take-profit: %s at %s reached %s",
			pos.Symbol, price.StringFixed(2), pos.TakeProfitPrice.StringFixed(2))
	default:
		return
	}

	logger.WithFields(map[string]interface{}{
		"symbol": pos.Symbol,
		"price":  price.StringFixed(2),
		"reason": reason,
	}).Warn("Forced liquidation triggered")

	if err := m.submitter.SubmitForcedSell(ctx, pos, price, reason); err != nil {
		logger.WithError(err).WithField("symbol", pos.Symbol).
			Error("Forced liquidation submission failed")
		return
	}
	if m.notifier != nil {
		_ = m.notifier.NotifyAlert(ctx, reason)
	}
}

// checkDrawdown pauses trading once drawdown reaches the configured limit.
// Resume is operator-only; the manager never clears the pause itself.
func (m *Manager) checkDrawdown(ctx context.Context, snapshot *model.PortfolioSnapshot) error {
	limit := m.params.MaxDrawdownPct.Neg()
	if snapshot.DrawdownPct.GreaterThan(limit) {
		return nil
	}
	state, err := m.state.Get(ctx)
	if err != nil {
		return err
	}
	if state.Paused {
		return nil
	}

	err = m.state.Pause(ctx, model.PauseReasonMaxDrawdown, model.ActorRiskManager)
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	if m.notifier != nil {
		_ = m.notifier.NotifyAlert(ctx, fmt.Sprintf(
			"Trading paused: drawdown %s%% breached -%s%%. Manual resume required.",
			snapshot.DrawdownPct.StringFixed(2), m.params.MaxDrawdownPct.StringFixed(2)))
	}
	return nil
}

// priceOf prefers the streamed last price and falls back to a REST quote.
func (m *Manager) priceOf(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if m.stream != nil {
		if price, ok := m.stream.LastPrice(symbol); ok {
			return price, nil
		}
	}
	return m.broker.GetQuote(ctx, symbol)
}
