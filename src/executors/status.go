package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/brokerage"
	"autotrader/src/engine"
	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/risk"
)

// PositionReport is one open position with its mark-to-market P&L.
type PositionReport struct {
	Symbol          string          `json:"symbol"`
	Quantity        int64           `json:"quantity"`
	Status          string          `json:"status"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	UnrealizedPL    decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPct decimal.Decimal `json:"unrealized_pl_pct"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	HeldSince       time.Time       `json:"held_since"`
}

// Report is the operator status view served by the CLI and /status.
type Report struct {
	Paused      bool            `json:"paused"`
	PauseReason string          `json:"pause_reason,omitempty"`
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	PeakEquity  decimal.Decimal `json:"peak_equity"`
	DrawdownPct decimal.Decimal `json:"drawdown_pct"`

	TradesToday    int64 `json:"trades_today"`
	DayTradesIn5d  int   `json:"day_trades_in_window"`
	PendingSignals int   `json:"pending_signals"`

	Positions []PositionReport `json:"positions"`
}

// StatusReport builds the live report for the run loop's /status endpoint.
func (r *Runner) StatusReport(ctx context.Context) (*Report, error) {
	return buildReport(ctx, r.db, r.broker, r.loc)
}

func buildReport(ctx context.Context, db *gorm.DB, broker brokerage.Client, loc *time.Location) (*Report, error) {
	now := time.Now().UTC()
	state, err := repository.NewStateRepository(db).Get(ctx)
	if err != nil {
		return nil, err
	}
	positions, err := repository.NewPositionRepository(db).FindActive(ctx)
	if err != nil {
		return nil, err
	}
	trades := repository.NewTradeRepository(db)
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	tradesToday, err := trades.CountFilledSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	recent, err := trades.FindSince(ctx, now.Add(-risk.PDTWindow))
	if err != nil {
		return nil, err
	}
	pending, err := repository.NewSignalRepository(db).FindByStatus(ctx, model.SignalStatusPendingApproval)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Paused:         state.Paused,
		PauseReason:    state.PauseReason,
		Cash:           state.Cash,
		TradesToday:    tradesToday,
		DayTradesIn5d:  risk.CountDayTrades(recent, loc),
		PendingSignals: len(pending),
	}

	equity := state.Cash
	for i := range positions {
		pos := &positions[i]
		price, err := broker.GetQuote(ctx, pos.Symbol)
		if err != nil {
			price = pos.EntryPrice
		}
		value := price.Mul(decimal.NewFromInt(pos.Quantity))
		cost := pos.EntryPrice.Mul(decimal.NewFromInt(pos.Quantity))
		pl := value.Sub(cost)
		plPct := decimal.Zero
		if cost.IsPositive() {
			plPct = pl.Div(cost).Mul(decimal.NewFromInt(100)).Round(2)
		}
		equity = equity.Add(value)
		report.Positions = append(report.Positions, PositionReport{
			Symbol:          pos.Symbol,
			Quantity:        pos.Quantity,
			Status:          pos.Status,
			EntryPrice:      pos.EntryPrice,
			CurrentPrice:    price,
			UnrealizedPL:    pl.Round(2),
			UnrealizedPLPct: plPct,
			StopLossPrice:   pos.StopLossPrice,
			TakeProfitPrice: pos.TakeProfitPrice,
			HeldSince:       pos.EntryTime,
		})
	}
	report.Equity = equity

	latest, err := repository.NewSnapshotRepository(db).Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		report.PeakEquity = latest.PeakEquity
		report.DrawdownPct = latest.DrawdownPct
	} else {
		report.PeakEquity = equity
	}
	return report, nil
}

// RunScan is the `scan` command: one synchronous cycle, summary on stdout.
func RunScan(ctx context.Context) error {
	runner, err := Setup(ctx)
	if err != nil {
		return err
	}
	if err := runner.engine.Recover(ctx); err != nil {
		return err
	}
	submitted, err := runner.ScanOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("scan complete: %d signal(s) submitted\n", submitted)
	return nil
}

// ShowStatus is the `status` command. Needs no approval channel; quotes come
// from the configured brokerage.
func ShowStatus(ctx context.Context) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	params, err := engine.GetConfig().Params()
	if err != nil {
		return err
	}
	report, err := buildReport(ctx, db, newBroker(brokerage.GetConfig()), params.Location)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// Resume is the operator-only `resume` command clearing a risk pause.
func Resume(ctx context.Context) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	err = repository.NewStateRepository(db).Resume(ctx, model.ActorOperator)
	if errors.Is(err, repository.ErrStaleTransition) {
		logger.Warn("Trading is not paused, nothing to resume")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("trading resumed")
	return nil
}
