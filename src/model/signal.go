package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const (
	SignalStatusPendingApproval = "PENDING_APPROVAL"
	SignalStatusApproved        = "APPROVED"
	SignalStatusRejected        = "REJECTED"
	SignalStatusExpired         = "EXPIRED"
	SignalStatusExecuting       = "EXECUTING"
	SignalStatusExecuted        = "EXECUTED"
	SignalStatusExecutionFailed = "EXECUTION_FAILED"
)

// Signal is a proposed trade moving through the approval and execution
// lifecycle. Every status change is recorded in the audit log within the
// same transaction.
type Signal struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Symbol   string `gorm:"size:10;not null;index" json:"symbol"`
	Side     string `gorm:"size:4;not null" json:"side"`
	Reason   string `gorm:"size:256" json:"reason"`
	Quantity int64  `gorm:"not null" json:"quantity"`

	// Reference price at evaluation time, used for sizing and the approval
	// prompt. Fills settle at the brokerage price.
	Price decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`

	// Forced signals come from the risk manager and skip the approval gate
	// and the minimum holding period.
	Forced bool `gorm:"not null;default:false" json:"forced"`

	Status string `gorm:"size:20;not null;index;default:PENDING_APPROVAL" json:"status"`

	// Correlation id of the outstanding approval request, if any.
	ApprovalID  string     `gorm:"size:64;index" json:"approval_id,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	// Assigned and persisted before the brokerage submit so a crash between
	// the write and the submit can be reconciled by order status lookup.
	ClientOrderID string `gorm:"size:64;index" json:"client_order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

// Terminal reports whether the signal can no longer change status.
func (s *Signal) Terminal() bool {
	switch s.Status {
	case SignalStatusRejected, SignalStatusExpired,
		SignalStatusExecuted, SignalStatusExecutionFailed:
		return true
	}
	return false
}
