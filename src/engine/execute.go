package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/brokerage"
	"autotrader/src/model"
	"autotrader/src/repository"
)

// startExecution runs an approved signal's brokerage round-trip in its own
// goroutine. When the engine is halted the signal stays APPROVED and is
// picked up by recovery after a restart.
func (e *Engine) startExecution(signal *model.Signal) {
	if e.halted.Load() {
		logger.WithField("signal", signal.ID).
			Warn("Executions halted, signal left APPROVED")
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.execute(context.Background(), signal); err != nil {
			logger.WithError(err).WithField("signal", signal.ID).
				Error("Execution finished with error")
		}
	}()
}

// execute durably marks the signal EXECUTING with a fresh client order id,
// then runs the order. The write must land before the brokerage is
// contacted: if it fails the brokerage is never called, and if the process
// dies after it the order can be reconciled by client order id.
func (e *Engine) execute(ctx context.Context, signal *model.Signal) error {
	clientOrderID := uuid.NewString()
	err := e.signals.MarkExecuting(ctx, signal.ID, clientOrderID)
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persisting EXECUTING for signal %d: %w", signal.ID, err)
	}
	signal.Status = model.SignalStatusExecuting
	signal.ClientOrderID = clientOrderID
	return e.runOrder(ctx, signal, false)
}

// runOrder submits the order (unless a resumed signal turns out to already
// exist at the brokerage) and polls it to a final state.
func (e *Engine) runOrder(ctx context.Context, signal *model.Signal, resumed bool) error {
	submit := true
	if resumed {
		// Never re-submit blindly: ask the brokerage first. Only a
		// definitive not-found proves the original submit never arrived,
		// which makes re-submitting the same client order id safe.
		state, err := e.orderStatusWithRetry(ctx, signal)
		switch {
		case errors.Is(err, brokerage.ErrOrderNotFound):
			logger.WithField("signal", signal.ID).
				Info("Order unknown at brokerage, re-submitting")
		case err != nil:
			if brokerage.IsFatal(err) {
				e.haltExecutions(err)
				return e.failExecution(ctx, signal, "fatal brokerage error during recovery: "+err.Error())
			}
			// Leave the signal EXECUTING; the next restart retries.
			return fmt.Errorf("order status unavailable during recovery for signal %d: %w", signal.ID, err)
		default:
			submit = false
			logger.WithFields(map[string]interface{}{
				"signal": signal.ID,
				"status": state.Status,
				"filled": state.FilledQty,
			}).Info("Order found at brokerage, resuming poll")
		}
	}

	if submit {
		if err := e.submitWithRetry(ctx, signal); err != nil {
			if brokerage.IsFatal(err) {
				e.haltExecutions(err)
			}
			return e.failExecution(ctx, signal, "order submission failed: "+err.Error())
		}
	}
	return e.pollUntilFinal(ctx, signal)
}

func (e *Engine) submitWithRetry(ctx context.Context, signal *model.Signal) error {
	delay := e.params.RetryBase
	var lastErr error
	for attempt := 1; attempt <= e.params.MaxOrderAttempts; attempt++ {
		err := e.broker.SubmitOrder(ctx, signal.ClientOrderID, signal.Symbol, signal.Side, signal.Quantity)
		if err == nil {
			return nil
		}
		if brokerage.IsFatal(err) {
			return err
		}
		lastErr = err
		logger.WithError(err).WithFields(map[string]interface{}{
			"signal":  signal.ID,
			"attempt": attempt,
		}).Warn("Order submit failed, backing off")
		if attempt < e.params.MaxOrderAttempts {
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			delay = nextDelay(delay, e.params.RetryMax)
		}
	}
	return lastErr
}

func (e *Engine) orderStatusWithRetry(ctx context.Context, signal *model.Signal) (*brokerage.OrderState, error) {
	delay := e.params.RetryBase
	var lastErr error
	for attempt := 1; attempt <= e.params.MaxOrderAttempts; attempt++ {
		state, err := e.broker.GetOrderStatus(ctx, signal.ClientOrderID)
		if err == nil {
			return state, nil
		}
		if errors.Is(err, brokerage.ErrOrderNotFound) || brokerage.IsFatal(err) {
			return nil, err
		}
		lastErr = err
		if attempt < e.params.MaxOrderAttempts {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			delay = nextDelay(delay, e.params.RetryMax)
		}
	}
	return nil, lastErr
}

// pollUntilFinal tracks the order until it fills, is rejected, or the poll
// budget runs out. Each newly observed fill delta is recorded (trade row,
// position and cash update) in one transaction before the next poll, so a
// crash never loses an acknowledged fill.
func (e *Engine) pollUntilFinal(ctx context.Context, signal *model.Signal) error {
	recorded, err := e.trades.SumQuantityBySignal(ctx, signal.ID)
	if err != nil {
		return err
	}

	delay := e.params.RetryBase
	failures := 0
	for attempt := 1; attempt <= e.params.MaxPollAttempts; attempt++ {
		state, err := e.broker.GetOrderStatus(ctx, signal.ClientOrderID)
		if err != nil {
			if brokerage.IsFatal(err) {
				e.haltExecutions(err)
				return e.failExecution(ctx, signal, "fatal brokerage error while polling: "+err.Error())
			}
			failures++
			if failures >= e.params.MaxOrderAttempts {
				return e.failExecution(ctx, signal, "order status unavailable: "+err.Error())
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			delay = nextDelay(delay, e.params.RetryMax)
			continue
		}
		failures = 0

		if state.FilledQty > recorded {
			delta := state.FilledQty - recorded
			status := model.TradeStatusPartial
			if state.Status == brokerage.OrderStatusFilled && recorded == 0 && state.FilledQty >= signal.Quantity {
				status = model.TradeStatusFilled
			}
			if err := e.recordFill(ctx, signal, delta, state.FillPrice, status); err != nil {
				// The fill stays at the brokerage; recovery re-derives the
				// missing delta from the recorded sum on restart.
				return fmt.Errorf("recording fill for signal %d: %w", signal.ID, err)
			}
			recorded = state.FilledQty
		}

		if state.Final() {
			if state.Status == brokerage.OrderStatusFilled && recorded >= signal.Quantity {
				return e.finalize(ctx, signal, recorded, state.FillPrice)
			}
			return e.failExecution(ctx, signal, fmt.Sprintf(
				"order ended %s with %d of %d filled", state.Status, recorded, signal.Quantity))
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay, e.params.RetryMax)
	}
	return e.failExecution(ctx, signal, fmt.Sprintf(
		"order not final after %d polls, %d of %d filled",
		e.params.MaxPollAttempts, recorded, signal.Quantity))
}

// recordFill writes one fill delta: the trade row, the position change and
// the cash movement commit together or not at all.
func (e *Engine) recordFill(ctx context.Context, signal *model.Signal, qty int64, price decimal.Decimal, status string) error {
	now := e.now()
	notional := price.Mul(decimal.NewFromInt(qty))

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trade := &model.Trade{
			SignalID:  signal.ID,
			Symbol:    signal.Symbol,
			Side:      signal.Side,
			Quantity:  qty,
			FillPrice: price,
			FilledAt:  now,
			OrderID:   signal.ClientOrderID,
			Status:    status,
		}
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		audits := repository.NewAuditRepository(tx)
		if err := audits.Append(ctx, "trade", trade.ID, "", status, model.ActorEngine,
			fmt.Sprintf("%s %d %s @ %s", signal.Side, qty, signal.Symbol, price.StringFixed(2))); err != nil {
			return err
		}

		positions := e.positions.WithDB(tx)
		pos, err := positions.FindActiveBySymbol(ctx, signal.Symbol)
		if err != nil {
			return err
		}

		cash := notional.Neg()
		switch signal.Side {
		case model.SideBuy:
			if pos == nil {
				pos = &model.Position{
					Symbol:          signal.Symbol,
					Quantity:        qty,
					EntryPrice:      price,
					EntryTime:       now,
					StopLossPrice:   priceWithPct(price, e.params.StopLossPct),
					TakeProfitPrice: priceWithPct(price, e.params.TakeProfitPct),
					Status:          model.PositionStatusOpen,
				}
				if err := tx.Create(pos).Error; err != nil {
					return err
				}
				if err := audits.Append(ctx, "position", pos.ID, "", model.PositionStatusOpen,
					model.ActorEngine, fmt.Sprintf("opened by signal %d", signal.ID)); err != nil {
					return err
				}
			} else {
				err := tx.Model(pos).Update("quantity", gorm.Expr("quantity + ?", qty)).Error
				if err != nil {
					return err
				}
			}

		case model.SideSell:
			if pos == nil {
				return fmt.Errorf("sell fill for %s but no position on record", signal.Symbol)
			}
			cash = notional
			remaining := pos.Quantity - qty
			if remaining <= 0 {
				updates := map[string]interface{}{
					"quantity":   0,
					"status":     model.PositionStatusClosed,
					"exit_price": price,
					"closed_at":  now,
				}
				if err := tx.Model(pos).Updates(updates).Error; err != nil {
					return err
				}
				if err := audits.Append(ctx, "position", pos.ID, pos.Status, model.PositionStatusClosed,
					model.ActorEngine, fmt.Sprintf("closed by signal %d", signal.ID)); err != nil {
					return err
				}
			} else {
				err := tx.Model(pos).Update("quantity", remaining).Error
				if err != nil {
					return err
				}
			}
		}

		return tx.Model(&model.TradingState{}).
			Where("id = ?", model.TradingStateID).
			Update("cash", gorm.Expr("cash + ?", cash)).Error
	})
}

// finalize marks the signal EXECUTED once fills cover the full quantity.
func (e *Engine) finalize(ctx context.Context, signal *model.Signal, qty int64, price decimal.Decimal) error {
	err := e.signals.TransitionStatus(ctx, signal.ID,
		model.SignalStatusExecuting, model.SignalStatusExecuted,
		model.ActorEngine, fmt.Sprintf("%d filled @ %s", qty, price.StringFixed(2)))
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"signal": signal.ID,
		"symbol": signal.Symbol,
		"side":   signal.Side,
		"qty":    qty,
		"price":  price.StringFixed(2),
	}).Info("Signal executed")

	if e.notifier != nil {
		_ = e.notifier.NotifyExecution(ctx, &model.Trade{
			SignalID:  signal.ID,
			Symbol:    signal.Symbol,
			Side:      signal.Side,
			Quantity:  qty,
			FillPrice: price,
			FilledAt:  e.now(),
			Status:    model.TradeStatusFilled,
		})
	}
	return nil
}

// failExecution marks the signal EXECUTION_FAILED. Partial fills already
// recorded stay as they are: the reduced or freshly opened position is real.
func (e *Engine) failExecution(ctx context.Context, signal *model.Signal, detail string) error {
	err := e.signals.TransitionStatus(ctx, signal.ID,
		model.SignalStatusExecuting, model.SignalStatusExecutionFailed,
		model.ActorEngine, detail)
	if errors.Is(err, repository.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"signal": signal.ID,
		"symbol": signal.Symbol,
		"reason": detail,
	}).Error("Execution failed")

	if signal.Side == model.SideSell {
		// Whatever was not sold remains held and tradeable.
		if err := e.releasePosition(ctx, signal.Symbol, model.ActorEngine, "execution failed"); err != nil {
			return err
		}
	}
	if e.notifier != nil {
		_ = e.notifier.NotifyAlert(ctx, fmt.Sprintf(
			"Execution of %s %d %s failed: %s", signal.Side, signal.Quantity, signal.Symbol, detail))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
