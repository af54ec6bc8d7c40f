package engine

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/approval"
	"autotrader/src/model"
	"autotrader/src/repository"
)

// HandleResponse applies one approval decision. Responses for unknown or
// already-resolved signals are discarded; the conditional status update makes
// a response that races the expiry sweep lose cleanly.
func (e *Engine) HandleResponse(ctx context.Context, resp approval.Response) error {
	signal, err := e.signals.FindByApprovalID(ctx, resp.RequestID)
	if err != nil {
		return err
	}
	if signal == nil {
		logger.WithField("request_id", resp.RequestID).
			Warn("Approval response for unknown request, discarded")
		return nil
	}
	if signal.Status != model.SignalStatusPendingApproval {
		logger.WithFields(map[string]interface{}{
			"signal": signal.ID,
			"status": signal.Status,
		}).Info("Approval response after resolution, discarded")
		return nil
	}

	to := model.SignalStatusRejected
	if resp.Decision == approval.DecisionApproved {
		to = model.SignalStatusApproved
	}
	err = e.signals.TransitionStatus(ctx, signal.ID,
		model.SignalStatusPendingApproval, to,
		model.ActorApprover, string(resp.Decision))
	if errors.Is(err, repository.ErrStaleTransition) {
		logger.WithField("signal", signal.ID).
			Info("Signal resolved before response arrived, discarded")
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.signals.MarkResponded(ctx, signal.ID, e.now()); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"signal":   signal.ID,
		"symbol":   signal.Symbol,
		"decision": resp.Decision,
	}).Info("Approval response applied")

	if to == model.SignalStatusApproved {
		signal.Status = model.SignalStatusApproved
		e.startExecution(signal)
		return nil
	}
	if signal.Side == model.SideSell {
		return e.releasePosition(ctx, signal.Symbol, model.ActorApprover, "sell rejected")
	}
	return nil
}

// SweepExpired moves overdue PENDING_APPROVAL signals to EXPIRED and frees
// any position reserved by an expired sell. Safe to run on every tick; rows
// already resolved are skipped.
func (e *Engine) SweepExpired(ctx context.Context) error {
	expired, err := e.signals.ExpireDue(ctx, e.now())
	if err != nil {
		return err
	}
	for i := range expired {
		signal := &expired[i]
		if signal.Side == model.SideSell {
			err := e.releasePosition(ctx, signal.Symbol, model.ActorEngine, "approval expired")
			if err != nil {
				return err
			}
		}
		if e.notifier != nil {
			_ = e.notifier.NotifyAlert(ctx, fmt.Sprintf(
				"Approval for %s %d %s expired unanswered.",
				signal.Side, signal.Quantity, signal.Symbol))
		}
	}
	return nil
}

// releasePosition flips a CLOSING position back to OPEN after its sell
// signal died. A position that already moved on is left alone.
func (e *Engine) releasePosition(ctx context.Context, symbol, actor, detail string) error {
	pos, err := e.positions.FindActiveBySymbol(ctx, symbol)
	if err != nil {
		return err
	}
	if pos == nil || pos.Status != model.PositionStatusClosing {
		return nil
	}
	err = e.positions.SetStatus(ctx, pos.ID,
		model.PositionStatusClosing, model.PositionStatusOpen, actor, detail)
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil
	}
	return err
}
