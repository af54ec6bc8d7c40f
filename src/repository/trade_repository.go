package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
)

// TradeRepository handles persistence for trade (fill) records.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// FindBySignal returns all trades recorded for a signal, oldest first.
func (r *TradeRepository) FindBySignal(ctx context.Context, signalID uint) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id ASC").
		Find(&trades).Error
	if err != nil {
		logger.WithError(err).WithField("signal_id", signalID).Error("Failed to fetch trades for signal")
		return nil, err
	}
	return trades, nil
}

// SumQuantityBySignal returns the filled quantity accumulated for a signal.
func (r *TradeRepository) SumQuantityBySignal(ctx context.Context, signalID uint) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Select("SUM(quantity)").
		Where("signal_id = ? AND status IN ?", signalID, []string{model.TradeStatusFilled, model.TradeStatusPartial}).
		Scan(&sum).Error
	if err != nil {
		logger.WithError(err).WithField("signal_id", signalID).Error("Failed to sum trade quantity")
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// CountFilledSince counts fills executed at or after the given instant.
// Used for the daily trade cap.
func (r *TradeRepository) CountFilledSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("filled_at >= ? AND status IN ?", since, []string{model.TradeStatusFilled, model.TradeStatusPartial}).
		Count(&count).Error
	if err != nil {
		logger.WithError(err).Error("Failed to count trades since")
		return 0, err
	}
	return count, nil
}

// FindSince returns fills executed at or after the given instant, oldest
// first. Used by the pattern-day-trading guard.
func (r *TradeRepository) FindSince(ctx context.Context, since time.Time) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("filled_at >= ? AND status IN ?", since, []string{model.TradeStatusFilled, model.TradeStatusPartial}).
		Order("filled_at ASC").
		Find(&trades).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch trades since")
		return nil, err
	}
	return trades, nil
}
