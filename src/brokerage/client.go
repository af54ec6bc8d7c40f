package brokerage

import (
	"context"

	"github.com/shopspring/decimal"
)

// Order statuses as normalized from the brokerage.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPartial   = "PARTIALLY_FILLED"
	OrderStatusFilled    = "FILLED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"
)

// OrderState is the brokerage's view of one order.
type OrderState struct {
	Status    string
	FilledQty int64
	FillPrice decimal.Decimal
}

// Final reports whether the order can no longer fill further.
func (s *OrderState) Final() bool {
	switch s.Status {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// Client is the fixed capability set the trading core needs from a
// brokerage. Orders are correlated by a caller-generated client order id so
// that status checks stay safe after a crash between submit and confirm;
// GetOrderStatus must be side-effect free.
type Client interface {
	// SubmitOrder places a market order. Submitting the same clientOrderID
	// twice must not create a second order on a conforming brokerage.
	SubmitOrder(ctx context.Context, clientOrderID, symbol, side string, qty int64) error

	// GetOrderStatus reports the current state of an order by client order
	// id. Returns ErrOrderNotFound if the brokerage never saw the order.
	GetOrderStatus(ctx context.Context, clientOrderID string) (*OrderState, error)

	// GetQuote returns the last traded price for a symbol.
	GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetPosition returns the quantity held at the brokerage, for
	// reconciliation.
	GetPosition(ctx context.Context, symbol string) (int64, error)
}
