package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
)

// SignalRepository handles read/write operations for signals.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Create inserts a new signal together with its audit entry.
func (r *SignalRepository) Create(ctx context.Context, signal *model.Signal, actor string) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "SignalRepository",
		"op":     "Create",
		"symbol": signal.Symbol,
		"side":   signal.Side,
		"qty":    signal.Quantity,
	}).Debug("Creating new signal")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(signal).Error; err != nil {
			logger.WithError(err).Error("Failed to create signal")
			return err
		}
		return appendAudit(tx, "signal", signal.ID, "", signal.Status, actor, signal.Reason)
	})
}

// FindByID fetches a single signal by its primary ID.
// Returns (nil, nil) if the signal is not found.
func (r *SignalRepository) FindByID(ctx context.Context, id uint) (*model.Signal, error) {
	var signal model.Signal
	err := r.db.WithContext(ctx).First(&signal, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).WithField("id", id).Error("Failed to fetch signal by ID")
		return nil, err
	}
	return &signal, nil
}

// FindByApprovalID fetches the signal correlated with an approval request.
// Returns (nil, nil) if no signal carries the given approval id.
func (r *SignalRepository) FindByApprovalID(ctx context.Context, approvalID string) (*model.Signal, error) {
	var signal model.Signal
	err := r.db.WithContext(ctx).
		Where("approval_id = ?", approvalID).
		First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).WithField("approval_id", approvalID).Error("Failed to fetch signal by approval ID")
		return nil, err
	}
	return &signal, nil
}

// FindByStatus returns all signals in the given status, oldest first.
func (r *SignalRepository) FindByStatus(ctx context.Context, status string) ([]model.Signal, error) {
	var signals []model.Signal
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&signals).Error
	if err != nil {
		logger.WithError(err).WithField("status", status).Error("Failed to fetch signals by status")
		return nil, err
	}
	return signals, nil
}

// SetApprovalID stores the approval-channel request id on a signal.
func (r *SignalRepository) SetApprovalID(ctx context.Context, id uint, approvalID string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ?", id).
		Update("approval_id", approvalID).Error
	if err != nil {
		logger.WithError(err).WithField("id", id).Error("Failed to set approval ID")
	}
	return err
}

// TransitionStatus moves a signal from one status to another with an audit
// entry, all in one transaction. The update is conditional on the current
// status so concurrent sweeps and late responses cannot double-transition;
// ErrStaleTransition is returned when the signal already moved on.
func (r *SignalRepository) TransitionStatus(ctx context.Context, id uint, from, to, actor, detail string) error {
	logger.WithFields(map[string]interface{}{
		"repo": "SignalRepository",
		"op":   "TransitionStatus",
		"id":   id,
		"from": from,
		"to":   to,
	}).Debug("Transitioning signal status")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Signal{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if res.Error != nil {
			logger.WithError(res.Error).WithField("id", id).Error("Failed to transition signal status")
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleTransition
		}
		return appendAudit(tx, "signal", id, from, to, actor, detail)
	})
}

// MarkExecuting durably moves an APPROVED signal to EXECUTING and records the
// client order id in the same transaction. The id must be on disk before the
// brokerage is contacted so a crash mid-submit can be reconciled.
func (r *SignalRepository) MarkExecuting(ctx context.Context, id uint, clientOrderID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Signal{}).
			Where("id = ? AND status = ?", id, model.SignalStatusApproved).
			Updates(map[string]interface{}{
				"status":          model.SignalStatusExecuting,
				"client_order_id": clientOrderID,
			})
		if res.Error != nil {
			logger.WithError(res.Error).WithField("id", id).Error("Failed to mark signal executing")
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleTransition
		}
		return appendAudit(tx, "signal", id,
			model.SignalStatusApproved, model.SignalStatusExecuting,
			model.ActorEngine, "order "+clientOrderID)
	})
}

// MarkResponded records the approval response timestamp.
func (r *SignalRepository) MarkResponded(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ?", id).
		Update("responded_at", at).Error
}

// ExpireDue transitions every signal still PENDING_APPROVAL past its deadline
// to EXPIRED and returns the signals it expired. Sweeping an already-resolved
// signal is a no-op because the per-row update is conditional on the
// PENDING_APPROVAL status.
func (r *SignalRepository) ExpireDue(ctx context.Context, now time.Time) ([]model.Signal, error) {
	var due []model.Signal
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.SignalStatusPendingApproval, now).
		Find(&due).Error
	if err != nil {
		logger.WithError(err).Error("Failed to list due signals")
		return nil, err
	}

	var expired []model.Signal
	for i := range due {
		err := r.TransitionStatus(ctx, due[i].ID,
			model.SignalStatusPendingApproval, model.SignalStatusExpired,
			model.ActorEngine, "approval deadline passed")
		if errors.Is(err, ErrStaleTransition) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, due[i])
	}

	if len(expired) > 0 {
		logger.WithField("count", len(expired)).Info("Expired unanswered signals")
	}
	return expired, nil
}
