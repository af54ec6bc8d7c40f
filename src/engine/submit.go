package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
	"autotrader/src/repository"
	"autotrader/src/risk"
)

// Submit validates a candidate against the portfolio invariants and creates
// the signal. Non-forced signals enter PENDING_APPROVAL and the approval
// request goes out after commit; forced signals are created APPROVED and
// execute immediately. A rejected candidate never produces a signal row.
func (e *Engine) Submit(ctx context.Context, cand Candidate) (*model.Signal, error) {
	if e.halted.Load() {
		return nil, ErrExecutionsHalted
	}
	if cand.Quantity <= 0 {
		return nil, violation("quantity", "quantity must be positive, got %d", cand.Quantity)
	}
	if cand.Side != model.SideBuy && cand.Side != model.SideSell {
		return nil, violation("side", "unknown side %q", cand.Side)
	}
	if cand.Actor == "" {
		cand.Actor = model.ActorEvaluator
	}

	now := e.now()
	signal := &model.Signal{
		Symbol:   cand.Symbol,
		Side:     cand.Side,
		Reason:   cand.Reason,
		Quantity: cand.Quantity,
		Price:    cand.Price,
		Forced:   cand.Forced,
		Status:   model.SignalStatusPendingApproval,
	}
	if cand.Forced {
		signal.Status = model.SignalStatusApproved
	} else {
		signal.ExpiresAt = now.Add(e.params.ApprovalTimeout)
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.check(ctx, tx, cand); err != nil {
			return err
		}
		if err := tx.Create(signal).Error; err != nil {
			return err
		}
		if cand.Side == model.SideSell {
			// Reserve the position while the sell is in flight so no
			// second sell can target it.
			pos, err := e.positions.WithDB(tx).FindActiveBySymbol(ctx, cand.Symbol)
			if err != nil {
				return err
			}
			err = e.positions.WithDB(tx).SetStatus(ctx, pos.ID,
				model.PositionStatusOpen, model.PositionStatusClosing,
				cand.Actor, fmt.Sprintf("sell signal %d in flight", signal.ID))
			if err != nil {
				return err
			}
		}
		return repository.NewAuditRepository(tx).Append(ctx,
			"signal", signal.ID, "", signal.Status, cand.Actor, cand.Reason)
	})
	if err != nil {
		if IsInvariantViolation(err) {
			logger.WithFields(map[string]interface{}{
				"symbol": cand.Symbol,
				"side":   cand.Side,
				"actor":  cand.Actor,
			}).WithError(err).Warn("Candidate rejected")
		}
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"signal": signal.ID,
		"symbol": signal.Symbol,
		"side":   signal.Side,
		"qty":    signal.Quantity,
		"status": signal.Status,
		"forced": signal.Forced,
	}).Info("Signal created")

	if signal.Status == model.SignalStatusApproved {
		e.startExecution(signal)
		return signal, nil
	}

	requestID, err := e.approvals.SendRequest(ctx, signal)
	if err != nil {
		// The signal stays PENDING_APPROVAL and will expire unanswered.
		logger.WithError(err).WithField("signal", signal.ID).
			Error("Approval request delivery failed")
		return signal, nil
	}
	if err := e.signals.SetApprovalID(ctx, signal.ID, requestID); err != nil {
		return signal, err
	}
	signal.ApprovalID = requestID
	return signal, nil
}

// check enforces the portfolio invariants against the state visible inside
// the submission transaction.
func (e *Engine) check(ctx context.Context, tx *gorm.DB, cand Candidate) error {
	positions := e.positions.WithDB(tx)
	trades := e.trades.WithDB(tx)
	now := e.now()

	state, err := e.state.WithDB(tx).Get(ctx)
	if err != nil {
		return err
	}

	if !cand.Forced {
		count, err := trades.CountFilledSince(ctx, startOfDay(now, e.params.Location))
		if err != nil {
			return err
		}
		if count >= e.params.MaxDailyTrades {
			return violation("daily_cap", "daily trade cap of %d reached", e.params.MaxDailyTrades)
		}
		recent, err := trades.FindSince(ctx, now.Add(-risk.PDTWindow))
		if err != nil {
			return err
		}
		if risk.DayTradeLimitReached(recent, e.params.Location) {
			return violation("pdt", "pattern day trading limit of %d reached", risk.PDTMaxDayTrades)
		}
	}

	switch cand.Side {
	case model.SideBuy:
		if state.Paused {
			return violation("paused", "trading is paused (%s)", state.PauseReason)
		}
		count, err := positions.CountActive(ctx)
		if err != nil {
			return err
		}
		if count >= int64(e.params.MaxHoldings) {
			return violation("max_holdings", "already holding %d of %d positions", count, e.params.MaxHoldings)
		}
		existing, err := positions.FindActiveBySymbol(ctx, cand.Symbol)
		if err != nil {
			return err
		}
		if existing != nil {
			return violation("one_per_symbol", "position already open for %s", cand.Symbol)
		}
		cost := cand.Price.Mul(decimal.NewFromInt(cand.Quantity))
		if cost.GreaterThan(state.Cash) {
			return violation("cash", "cost %s exceeds cash %s", cost.StringFixed(2), state.Cash.StringFixed(2))
		}

	case model.SideSell:
		pos, err := positions.FindActiveBySymbol(ctx, cand.Symbol)
		if err != nil {
			return err
		}
		if pos == nil {
			return violation("no_position", "no open position for %s", cand.Symbol)
		}
		if pos.Status != model.PositionStatusOpen {
			return violation("position_closing", "a sell for %s is already in flight", cand.Symbol)
		}
		if cand.Quantity > pos.Quantity {
			return violation("oversell", "sell of %d exceeds held %d for %s", cand.Quantity, pos.Quantity, cand.Symbol)
		}
		if !cand.Forced {
			if !risk.MinHoldElapsed(pos.EntryTime, now, e.params.MinHold) {
				return violation("min_hold", "%s held %s, minimum is %s",
					cand.Symbol, now.Sub(pos.EntryTime).Round(time.Minute), e.params.MinHold)
			}
			if risk.SameTradingDay(pos.EntryTime, now, e.params.Location) {
				return violation("day_trade", "%s was opened today, selling would be a day trade", cand.Symbol)
			}
		}
	}
	return nil
}
