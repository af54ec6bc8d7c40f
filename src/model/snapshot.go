package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot records equity and drawdown at one point in time.
// DrawdownPct is measured against the running peak equity carried forward
// from the previous snapshot.
type PortfolioSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	Equity        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"equity"`
	Cash          decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"cash"`
	HoldingsValue decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"holdings_value"`

	PeakEquity  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"peak_equity"`
	DrawdownPct decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"drawdown_pct"`

	DailyPL    *decimal.Decimal `gorm:"type:decimal(20,8)" json:"daily_pl,omitempty"`
	DailyPLPct *decimal.Decimal `gorm:"type:decimal(10,4)" json:"daily_pl_pct,omitempty"`

	NumHoldings int       `gorm:"not null;default:0" json:"num_holdings"`
	CreatedAt   time.Time `json:"created_at"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
