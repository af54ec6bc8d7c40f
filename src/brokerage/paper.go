package brokerage

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// PaperClient is the deterministic in-memory brokerage used both for paper
// trading and as the test double. Orders fill at the current quote; a
// partial-fill script can stage multi-step fills for a client order id.
type PaperClient struct {
	mu        sync.Mutex
	quotes    map[string]decimal.Decimal
	orders    map[string]*paperOrder
	positions map[string]int64

	// fillScript maps a client order id to the successive filled
	// quantities each GetOrderStatus call reveals. Empty script means
	// immediate full fill.
	fillScript map[string][]int64

	// nextScript applies to the next submitted order, whatever its id.
	nextScript []int64
}

type paperOrder struct {
	symbol string
	side   string
	qty    int64
	filled int64
	price  decimal.Decimal
	script []int64
}

func NewPaperClient() *PaperClient {
	return &PaperClient{
		quotes:     make(map[string]decimal.Decimal),
		orders:     make(map[string]*paperOrder),
		positions:  make(map[string]int64),
		fillScript: make(map[string][]int64),
	}
}

// SetQuote sets the price the next orders and quotes will see.
func (c *PaperClient) SetQuote(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = price
}

// ScriptPartialFills stages the filled-quantity steps that successive
// GetOrderStatus calls will report for clientOrderID.
func (c *PaperClient) ScriptPartialFills(clientOrderID string, steps ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillScript[clientOrderID] = steps
}

// ScriptNextOrder stages fill steps for the next order submitted, for
// callers that generate client order ids internally.
func (c *PaperClient) ScriptNextOrder(steps ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextScript = steps
}

func (c *PaperClient) SubmitOrder(_ context.Context, clientOrderID, symbol, side string, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.orders[clientOrderID]; exists {
		// Idempotent re-submit.
		return nil
	}

	price, ok := c.quotes[symbol]
	if !ok {
		price = decimal.Zero
	}

	script := c.fillScript[clientOrderID]
	if len(script) == 0 && len(c.nextScript) > 0 {
		script = c.nextScript
		c.nextScript = nil
	}
	order := &paperOrder{
		symbol: symbol,
		side:   side,
		qty:    qty,
		price:  price,
		script: script,
	}
	if len(order.script) == 0 {
		order.filled = qty
		c.applyFill(symbol, side, qty)
	}
	c.orders[clientOrderID] = order

	logger.WithFields(map[string]interface{}{
		"client_order_id": clientOrderID,
		"symbol":          symbol,
		"side":            side,
		"qty":             qty,
		"price":           price.String(),
	}).Info("[PAPER] order submitted")
	return nil
}

func (c *PaperClient) GetOrderStatus(_ context.Context, clientOrderID string) (*OrderState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[clientOrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	if len(order.script) > 0 {
		next := order.script[0]
		order.script = order.script[1:]
		if next > order.filled {
			c.applyFill(order.symbol, order.side, next-order.filled)
			order.filled = next
		}
	}

	status := OrderStatusPartial
	if order.filled >= order.qty {
		status = OrderStatusFilled
	} else if order.filled == 0 {
		status = OrderStatusPending
	}

	return &OrderState{
		Status:    status,
		FilledQty: order.filled,
		FillPrice: order.price,
	}, nil
}

func (c *PaperClient) GetQuote(_ context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	price, ok := c.quotes[symbol]
	if !ok {
		return decimal.Zero, &TransientError{Op: "GetQuote", Err: errors.New("no quote for " + symbol)}
	}
	return price, nil
}

func (c *PaperClient) GetPosition(_ context.Context, symbol string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positions[symbol], nil
}

// applyFill tracks the brokerage-side position book. Callers hold the lock.
func (c *PaperClient) applyFill(symbol, side string, qty int64) {
	if side == "BUY" {
		c.positions[symbol] += qty
	} else {
		c.positions[symbol] -= qty
	}
}
