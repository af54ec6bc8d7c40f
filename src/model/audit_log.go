package model

import "time"

// Actor values recorded in audit entries.
const (
	ActorEvaluator   = "evaluator"
	ActorRiskManager = "risk_manager"
	ActorEngine      = "engine"
	ActorOperator    = "operator"
	ActorApprover    = "approver"
)

// AuditLogEntry is an append-only record of one state transition, written in
// the same transaction as the transition itself. Never updated or deleted.
type AuditLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	Entity     string `gorm:"size:32;not null" json:"entity"`
	EntityID   uint   `gorm:"not null;index" json:"entity_id"`
	FromStatus string `gorm:"size:32" json:"from_status"`
	ToStatus   string `gorm:"size:32;not null" json:"to_status"`
	Actor      string `gorm:"size:32;not null" json:"actor"`
	Detail     string `gorm:"size:512" json:"detail,omitempty"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log"
}
