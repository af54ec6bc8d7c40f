package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
)

// SnapshotRepository handles persistence for portfolio snapshots.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) WithDB(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create appends a snapshot.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *model.PortfolioSnapshot) error {
	err := r.db.WithContext(ctx).Create(snapshot).Error
	if err != nil {
		logger.WithError(err).Error("Failed to create portfolio snapshot")
	}
	return err
}

// FirstSince returns the oldest snapshot taken at or after the given
// instant, or (nil, nil) when none exists. Used for daily P&L.
func (r *SnapshotRepository) FirstSince(ctx context.Context, since time.Time) (*model.PortfolioSnapshot, error) {
	var snapshot model.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Where("timestamp >= ?", since).
		Order("id ASC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).Error("Failed to fetch first snapshot since")
		return nil, err
	}
	return &snapshot, nil
}

// Latest returns the most recent snapshot, or (nil, nil) when none exists.
func (r *SnapshotRepository) Latest(ctx context.Context) (*model.PortfolioSnapshot, error) {
	var snapshot model.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Order("id DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).Error("Failed to fetch latest snapshot")
		return nil, err
	}
	return &snapshot, nil
}
