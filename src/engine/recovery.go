package engine

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

// Recover reconciles signals left mid-lifecycle by a crash. EXECUTING
// signals are resumed against the brokerage by client order id; APPROVED
// signals that never started are executed; overdue approvals are swept.
func (e *Engine) Recover(ctx context.Context) error {
	executing, err := e.signals.FindByStatus(ctx, model.SignalStatusExecuting)
	if err != nil {
		return err
	}
	for i := range executing {
		signal := executing[i]
		logger.WithFields(map[string]interface{}{
			"signal":          signal.ID,
			"symbol":          signal.Symbol,
			"client_order_id": signal.ClientOrderID,
		}).Info("Recovering in-flight execution")

		e.wg.Add(1)
		go func(signal model.Signal) {
			defer e.wg.Done()
			if err := e.runOrder(context.Background(), &signal, true); err != nil {
				logger.WithError(err).WithField("signal", signal.ID).
					Error("Recovery of execution failed")
			}
		}(signal)
	}

	approved, err := e.signals.FindByStatus(ctx, model.SignalStatusApproved)
	if err != nil {
		return err
	}
	for i := range approved {
		signal := approved[i]
		logger.WithField("signal", signal.ID).Info("Resuming approved signal")
		e.startExecution(&signal)
	}

	return e.SweepExpired(ctx)
}
