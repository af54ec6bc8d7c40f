package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"autotrader/src/model"
)

// ErrStaleTransition is returned when a conditional status update matched no
// row, meaning another actor already moved the entity to a different status.
var ErrStaleTransition = errors.New("entity already transitioned")

// appendAudit writes an audit entry inside the caller's transaction so the
// entry commits or rolls back together with the transition it describes.
func appendAudit(tx *gorm.DB, entity string, entityID uint, from, to, actor, detail string) error {
	entry := model.AuditLogEntry{
		Timestamp:  time.Now().UTC(),
		Entity:     entity,
		EntityID:   entityID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Detail:     detail,
	}
	return tx.Create(&entry).Error
}

// AuditRepository exposes read access to the append-only audit trail.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithDB(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// FindByEntity returns the audit trail for one entity, oldest first.
func (r *AuditRepository) FindByEntity(ctx context.Context, entity string, entityID uint) ([]model.AuditLogEntry, error) {
	var entries []model.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// Append writes a standalone audit entry outside any entity transition
// (operator actions, alerts).
func (r *AuditRepository) Append(ctx context.Context, entity string, entityID uint, from, to, actor, detail string) error {
	return appendAudit(r.db.WithContext(ctx), entity, entityID, from, to, actor, detail)
}
