package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusFilled  = "FILLED"
	TradeStatusPartial = "PARTIAL"
	TradeStatusFailed  = "FAILED"
)

// Trade is one fill (or failure) reported by the brokerage for a signal.
// An EXECUTED signal maps to exactly one FILLED trade, or to a sequence of
// PARTIAL trades whose quantities sum to the signal's quantity.
type Trade struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	SignalID uint   `gorm:"not null;index" json:"signal_id"`
	Symbol   string `gorm:"size:10;not null;index" json:"symbol"`
	Side     string `gorm:"size:4;not null" json:"side"`
	Quantity int64  `gorm:"not null" json:"quantity"`

	FillPrice decimal.Decimal `gorm:"type:decimal(20,8)" json:"fill_price"`
	FilledAt  time.Time       `json:"filled_at"`

	// Brokerage-side order id for reconciliation.
	OrderID string `gorm:"size:64" json:"order_id,omitempty"`

	Status    string    `gorm:"size:10;not null" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
