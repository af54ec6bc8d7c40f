package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
	"autotrader/src/repository"
)

// PriceFunc resolves the current price of a symbol.
type PriceFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

// Service computes mark-to-market valuations and appends portfolio
// snapshots carrying the running peak equity and drawdown.
type Service struct {
	positions *repository.PositionRepository
	snapshots *repository.SnapshotRepository
	state     *repository.StateRepository
	loc       *time.Location
	now       func() time.Time
}

func NewService(db *gorm.DB, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		positions: repository.NewPositionRepository(db),
		snapshots: repository.NewSnapshotRepository(db),
		state:     repository.NewStateRepository(db),
		loc:       loc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Useful for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Valuation is a point-in-time mark-to-market of the portfolio.
type Valuation struct {
	Cash          decimal.Decimal
	HoldingsValue decimal.Decimal
	Equity        decimal.Decimal
	NumHoldings   int
}

// Value marks all held positions to market. A position whose price cannot
// be fetched is valued at its entry price so one bad quote does not distort
// the drawdown calculation.
func (s *Service) Value(ctx context.Context, priceOf PriceFunc) (*Valuation, error) {
	state, err := s.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := s.positions.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	holdings := decimal.Zero
	for i := range positions {
		pos := &positions[i]
		price, err := priceOf(ctx, pos.Symbol)
		if err != nil {
			logger.WithError(err).WithField("symbol", pos.Symbol).
				Warn("Quote unavailable, valuing position at entry price")
			price = pos.EntryPrice
		}
		holdings = holdings.Add(price.Mul(decimal.NewFromInt(pos.Quantity)))
	}

	return &Valuation{
		Cash:          state.Cash,
		HoldingsValue: holdings,
		Equity:        state.Cash.Add(holdings),
		NumHoldings:   len(positions),
	}, nil
}

// Snapshot values the portfolio and appends a snapshot. Peak equity carries
// forward from the previous snapshot; drawdown is measured against it.
func (s *Service) Snapshot(ctx context.Context, priceOf PriceFunc) (*model.PortfolioSnapshot, error) {
	valuation, err := s.Value(ctx, priceOf)
	if err != nil {
		return nil, err
	}

	now := s.now()
	peak := valuation.Equity
	prev, err := s.snapshots.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.PeakEquity.GreaterThan(peak) && s.carriesPeak(ctx, prev) {
		peak = prev.PeakEquity
	}

	drawdown := decimal.Zero
	if peak.IsPositive() {
		drawdown = valuation.Equity.Sub(peak).
			Div(peak).
			Mul(decimal.NewFromInt(100)).
			Round(4)
	}

	snapshot := &model.PortfolioSnapshot{
		Timestamp:     now,
		Equity:        valuation.Equity,
		Cash:          valuation.Cash,
		HoldingsValue: valuation.HoldingsValue,
		PeakEquity:    peak,
		DrawdownPct:   drawdown,
		NumHoldings:   valuation.NumHoldings,
	}

	if pl, plPct, ok := s.dailyPL(ctx, valuation.Equity, now); ok {
		snapshot.DailyPL = &pl
		snapshot.DailyPLPct = &plPct
	}

	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// carriesPeak reports whether the previous snapshot's peak still applies.
// The peak runs from inception or from the last operator resume, whichever
// is later: after a drawdown pause is cleared the old peak must not
// immediately re-trigger the circuit breaker.
func (s *Service) carriesPeak(ctx context.Context, prev *model.PortfolioSnapshot) bool {
	state, err := s.state.Get(ctx)
	if err != nil {
		logger.WithError(err).Warn("Trading state unavailable, carrying previous peak")
		return true
	}
	return state.ResumedAt == nil || !prev.Timestamp.Before(*state.ResumedAt)
}

// dailyPL compares current equity with the first snapshot of the local day.
func (s *Service) dailyPL(ctx context.Context, equity decimal.Decimal, now time.Time) (decimal.Decimal, decimal.Decimal, bool) {
	local := now.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	open, err := s.snapshots.FirstSince(ctx, midnight)
	if err != nil || open == nil || !open.Equity.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	pl := equity.Sub(open.Equity)
	plPct := pl.Div(open.Equity).Mul(decimal.NewFromInt(100)).Round(4)
	return pl, plPct, true
}
