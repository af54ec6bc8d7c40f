package brokerage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPaperClientFillsAtQuote(t *testing.T) {
	ctx := context.Background()
	c := NewPaperClient()
	c.SetQuote("AAPL", decimal.NewFromInt(10))

	require.NoError(t, c.SubmitOrder(ctx, "order-1", "AAPL", "BUY", 20))

	state, err := c.GetOrderStatus(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, OrderStatusFilled, state.Status)
	require.EqualValues(t, 20, state.FilledQty)
	require.True(t, state.FillPrice.Equal(decimal.NewFromInt(10)))
	require.True(t, state.Final())

	held, err := c.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.EqualValues(t, 20, held)
}

func TestPaperClientSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewPaperClient()
	c.SetQuote("AAPL", decimal.NewFromInt(10))

	require.NoError(t, c.SubmitOrder(ctx, "order-1", "AAPL", "BUY", 20))
	require.NoError(t, c.SubmitOrder(ctx, "order-1", "AAPL", "BUY", 20))

	held, err := c.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.EqualValues(t, 20, held, "re-submit must not double the fill")
}

func TestPaperClientScriptedPartialFills(t *testing.T) {
	ctx := context.Background()
	c := NewPaperClient()
	c.SetQuote("AAPL", decimal.NewFromInt(10))
	c.ScriptPartialFills("order-1", 0, 12, 20)

	require.NoError(t, c.SubmitOrder(ctx, "order-1", "AAPL", "BUY", 20))

	state, err := c.GetOrderStatus(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, OrderStatusPending, state.Status)
	require.False(t, state.Final())

	state, err = c.GetOrderStatus(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartial, state.Status)
	require.EqualValues(t, 12, state.FilledQty)

	state, err = c.GetOrderStatus(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, OrderStatusFilled, state.Status)
	require.EqualValues(t, 20, state.FilledQty)

	held, err := c.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.EqualValues(t, 20, held)
}

func TestPaperClientScriptNextOrder(t *testing.T) {
	ctx := context.Background()
	c := NewPaperClient()
	c.SetQuote("AAPL", decimal.NewFromInt(10))
	c.ScriptNextOrder(5, 20)

	require.NoError(t, c.SubmitOrder(ctx, "generated-id", "AAPL", "BUY", 20))

	state, err := c.GetOrderStatus(ctx, "generated-id")
	require.NoError(t, err)
	require.EqualValues(t, 5, state.FilledQty)

	// The script was consumed; a second order fills immediately.
	require.NoError(t, c.SubmitOrder(ctx, "next-id", "MSFT", "SELL", 3))
	state, err = c.GetOrderStatus(ctx, "next-id")
	require.NoError(t, err)
	require.Equal(t, OrderStatusFilled, state.Status)
}

func TestPaperClientUnknownOrder(t *testing.T) {
	c := NewPaperClient()
	_, err := c.GetOrderStatus(context.Background(), "never-submitted")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPaperClientQuoteMiss(t *testing.T) {
	c := NewPaperClient()
	_, err := c.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	require.False(t, IsFatal(err))
}
