package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
)

// PositionRepository handles persistence for positions.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindActiveBySymbol returns the OPEN or CLOSING position for a symbol.
// Returns (nil, nil) when the symbol is not held.
func (r *PositionRepository) FindActiveBySymbol(ctx context.Context, symbol string) (*model.Position, error) {
	var position model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status IN ?", symbol, []string{model.PositionStatusOpen, model.PositionStatusClosing}).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).WithField("symbol", symbol).Error("Failed to fetch position by symbol")
		return nil, err
	}
	return &position, nil
}

// FindOpen returns every OPEN position.
func (r *PositionRepository) FindOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("symbol ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch open positions")
		return nil, err
	}
	return positions, nil
}

// FindActive returns every position still holding shares (OPEN or CLOSING).
func (r *PositionRepository) FindActive(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{model.PositionStatusOpen, model.PositionStatusClosing}).
		Order("symbol ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch active positions")
		return nil, err
	}
	return positions, nil
}

// CountActive counts positions that occupy a holding slot (OPEN or CLOSING).
func (r *PositionRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("status IN ?", []string{model.PositionStatusOpen, model.PositionStatusClosing}).
		Count(&count).Error
	if err != nil {
		logger.WithError(err).Error("Failed to count active positions")
		return 0, err
	}
	return count, nil
}

// SetStatus flips a position between OPEN and CLOSING with an audit entry.
// The update is conditional on the current status.
func (r *PositionRepository) SetStatus(ctx context.Context, id uint, from, to, actor, detail string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Position{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if res.Error != nil {
			logger.WithError(res.Error).WithField("id", id).Error("Failed to update position status")
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleTransition
		}
		return appendAudit(tx, "position", id, from, to, actor, detail)
	})
}
