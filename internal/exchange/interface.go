package exchange

import (
	"context"
	"time"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// Client is the exchange capability the engine and risk manager depend on.
// Live, paper and simulated implementations are interchangeable behind it.
type Client interface {
	GetName() string
	Mode() string

	Connect(ctx context.Context) error
	Disconnect() error

	// Market data
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	GetTickers(ctx context.Context) ([]types.Ticker, error)
	GetKlines(ctx context.Context, params KlineParams) ([]types.OHLCV, error)

	// Account
	GetBalance(ctx context.Context, asset string) (*types.Balance, error)
	GetPositions(ctx context.Context, symbol string) ([]Position, error)

	// Trading
	PlaceOrder(ctx context.Context, params OrderParams) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// KlineParams represents parameters for kline/candlestick requests.
type KlineParams struct {
	Symbol   string
	Interval string // 1m, 5m, 15m, 1h, 4h, 1d
	Limit    int
	Start    *time.Time
	End      *time.Time
}

// OrderSide represents buy or sell side
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the closing side for a position opened on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents different order types
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// OrderParams represents parameters for placing orders.
type OrderParams struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity float64
	Price    float64 // limit orders only
}

// Fill is a single execution of an order.
type Fill struct {
	Price    float64
	Quantity float64
	Fee      float64
}

// Order represents order information returned by exchanges.
type Order struct {
	OrderID     string
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Status      OrderStatus
	ExecutedQty float64
	Fills       []Fill
	CreatedAt   time.Time
}

// IsFilled reports whether the order fully executed. Anything else is treated
// as "not yet a position" by the engine.
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// FillPrice returns the volume-weighted average fill price, or 0 when the
// order has no fills.
func (o *Order) FillPrice() float64 {
	var notional, qty float64
	for _, f := range o.Fills {
		notional += f.Price * f.Quantity
		qty += f.Quantity
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// TotalFee returns the summed commission across fills.
func (o *Order) TotalFee() float64 {
	var fee float64
	for _, f := range o.Fills {
		fee += f.Fee
	}
	return fee
}

// Position is an exchange-reported position, used for reconciliation and
// reporting only; the risk manager keeps its own book.
type Position struct {
	Symbol        string
	Side          string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
}
