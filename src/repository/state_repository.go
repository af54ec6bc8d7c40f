package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
)

// StateRepository handles the singleton trading state row.
type StateRepository struct {
	db *gorm.DB
}

func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

func (r *StateRepository) WithDB(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get loads the current trading state.
func (r *StateRepository) Get(ctx context.Context) (*model.TradingState, error) {
	var state model.TradingState
	err := r.db.WithContext(ctx).First(&state, model.TradingStateID).Error
	if err != nil {
		logger.WithError(err).Error("Failed to load trading state")
		return nil, err
	}
	return &state, nil
}

// Pause sets paused=true with a reason. The update is conditional on the
// current unpaused state so concurrent risk cycles write the pause exactly
// once; pausing an already-paused state returns ErrStaleTransition.
func (r *StateRepository) Pause(ctx context.Context, reason, actor string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TradingState{}).
			Where("id = ? AND paused = ?", model.TradingStateID, false).
			Updates(map[string]interface{}{
				"paused":       true,
				"pause_reason": reason,
				"paused_at":    now,
			})
		if res.Error != nil {
			logger.WithError(res.Error).Error("Failed to pause trading")
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleTransition
		}
		logger.WithField("reason", reason).Warn("TRADING PAUSED")
		return appendAudit(tx, "trading_state", model.TradingStateID, "active", "paused", actor, reason)
	})
}

// Resume clears the pause flag. Operator-triggered only; the risk manager
// never calls this.
func (r *StateRepository) Resume(ctx context.Context, actor string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TradingState{}).
			Where("id = ? AND paused = ?", model.TradingStateID, true).
			Updates(map[string]interface{}{
				"paused":       false,
				"pause_reason": "",
				"resumed_at":   now,
			})
		if res.Error != nil {
			logger.WithError(res.Error).Error("Failed to resume trading")
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleTransition
		}
		logger.Info("Trading resumed")
		return appendAudit(tx, "trading_state", model.TradingStateID, "paused", "active", actor, "")
	})
}
