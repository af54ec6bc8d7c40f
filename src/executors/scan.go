package executors

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/engine"
	"autotrader/src/evaluator"
	"autotrader/src/model"
	"autotrader/src/repository"
)

// ScanOnce runs one signal-scan cycle: quote the watchlist, evaluate it
// against current holdings and submit the resulting candidates. Returns how
// many signals were created; invariant rejections are logged, not errors.
func (r *Runner) ScanOnce(ctx context.Context) (int, error) {
	positions, err := repository.NewPositionRepository(r.db).FindActive(ctx)
	if err != nil {
		return 0, err
	}
	state, err := repository.NewStateRepository(r.db).Get(ctx)
	if err != nil {
		return 0, err
	}

	ranked := r.rankedCandidates(ctx, positions)
	candidates := r.evaluator.Evaluate(ranked, positions, state)
	if len(candidates) == 0 {
		logger.Info("Scan cycle produced no candidates")
		return 0, nil
	}

	submitted := 0
	for _, cand := range candidates {
		_, err := r.engine.Submit(ctx, cand)
		if engine.IsInvariantViolation(err) {
			continue
		}
		if err != nil {
			return submitted, err
		}
		submitted++
	}
	logger.WithField("submitted", submitted).Info("Scan cycle finished")
	return submitted, nil
}

// rankedCandidates quotes the watchlist in its configured (ranked) order.
// A symbol without a quote simply drops out of this cycle.
func (r *Runner) rankedCandidates(ctx context.Context, positions []model.Position) []evaluator.Ranked {
	held := make(map[string]bool, len(positions))
	for i := range positions {
		held[positions[i].Symbol] = true
	}

	var ranked []evaluator.Ranked
	for _, symbol := range r.config.Watchlist {
		if held[symbol] {
			continue
		}
		price, err := r.broker.GetQuote(ctx, symbol)
		if err != nil {
			logger.WithError(err).WithField("symbol", symbol).
				Debug("No quote for watchlist symbol this cycle")
			continue
		}
		ranked = append(ranked, evaluator.Ranked{
			Symbol: symbol,
			Price:  price,
			Reason: "watchlist candidate",
		})
	}
	return ranked
}
