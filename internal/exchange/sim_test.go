package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimClient_KlinesEndAtCurrentPrice(t *testing.T) {
	sim := NewSimClient("USDT", 10_000, 7)
	sim.SetPrice("BTCUSDT", 50_000)

	klines, err := sim.GetKlines(context.Background(), KlineParams{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Limit:    50,
	})
	require.NoError(t, err)
	require.Len(t, klines, 50)

	assert.InDelta(t, 50_000, klines[len(klines)-1].Close, 1e-9)
	for i := 1; i < len(klines); i++ {
		assert.True(t, klines[i].Timestamp.After(klines[i-1].Timestamp),
			"klines must be in ascending time order")
	}
}

func TestSimClient_UnknownSymbol(t *testing.T) {
	sim := NewSimClient("USDT", 10_000, 7)

	_, err := sim.GetTicker(context.Background(), "NOPEUSDT")
	require.Error(t, err)

	_, err = sim.GetKlines(context.Background(), KlineParams{Symbol: "NOPEUSDT", Interval: "1h"})
	require.Error(t, err)
}

func TestSimClient_FailNextOrderHook(t *testing.T) {
	sim := NewSimClient("USDT", 10_000, 7)
	sim.SetPrice("BTCUSDT", 50_000)
	sim.FailNextOrder("BTCUSDT", NewExchangeError("sim", "", "injected failure", false))

	_, err := sim.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01,
	})
	require.Error(t, err)

	// The hook is one-shot; the next order goes through.
	order, err := sim.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01,
	})
	require.NoError(t, err)
	assert.True(t, order.IsFilled())
}

func TestSimClient_RejectNextOrderHook(t *testing.T) {
	sim := NewSimClient("USDT", 10_000, 7)
	sim.SetPrice("BTCUSDT", 50_000)
	sim.RejectNextOrder("BTCUSDT")

	order, err := sim.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRejected, order.Status)
	assert.False(t, order.IsFilled())

	// Rejected orders must not move balances.
	balance, err := sim.GetBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 10_000, balance.Free, 1e-9)
}
