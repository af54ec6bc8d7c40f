package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusOpen    = "OPEN"
	PositionStatusClosing = "CLOSING"
	PositionStatusClosed  = "CLOSED"
)

// Position is an open or closed stake in one symbol. At most one position per
// symbol may be in a non-CLOSED state at any time.
type Position struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Symbol   string `gorm:"size:10;not null;index" json:"symbol"`
	Quantity int64  `gorm:"not null" json:"quantity"`

	EntryPrice decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	EntryTime  time.Time       `gorm:"not null" json:"entry_time"`

	// Fixed at entry from the configured percentages, not recalculated on
	// price movement.
	StopLossPrice   decimal.Decimal `gorm:"type:decimal(20,8)" json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal `gorm:"type:decimal(20,8)" json:"take_profit_price"`

	Status    string           `gorm:"size:10;not null;default:OPEN" json:"status"`
	ExitPrice *decimal.Decimal `gorm:"type:decimal(20,8)" json:"exit_price,omitempty"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
