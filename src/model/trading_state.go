package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingStateID is the primary key of the singleton trading state row.
const TradingStateID uint = 1

const PauseReasonMaxDrawdown = "max_drawdown"

// TradingState is the process-wide singleton record. Paused is set only by
// the risk manager (drawdown breach) and cleared only by an explicit
// operator resume. Cash is debited and credited inside the same transaction
// as the trade records it belongs to.
type TradingState struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Paused      bool            `gorm:"not null;default:false" json:"paused"`
	PauseReason string          `gorm:"size:128" json:"pause_reason,omitempty"`
	PausedAt    *time.Time      `json:"paused_at,omitempty"`
	ResumedAt   *time.Time      `json:"resumed_at,omitempty"`
	Cash        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"cash"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (TradingState) TableName() string {
	return "trading_state"
}
