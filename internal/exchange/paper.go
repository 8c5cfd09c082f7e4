package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// paperFeeRate mirrors the taker fee on the major spot exchanges.
const paperFeeRate = 0.001

// PaperClient trades against real market data with a simulated account.
// Market reads delegate to the wrapped client; orders fill instantly at the
// last traded price minus fees.
type PaperClient struct {
	market Client
	quote  string

	mu       sync.Mutex
	balances map[string]float64 // asset -> free amount
	orders   map[string]*Order
}

// NewPaperClient creates a paper trading client funded with initialBalance
// of the quote asset.
func NewPaperClient(market Client, quote string, initialBalance float64) *PaperClient {
	return &PaperClient{
		market: market,
		quote:  quote,
		balances: map[string]float64{
			quote: initialBalance,
		},
		orders: make(map[string]*Order),
	}
}

func (p *PaperClient) GetName() string {
	return p.market.GetName()
}

func (p *PaperClient) Mode() string {
	return "paper"
}

func (p *PaperClient) Connect(ctx context.Context) error {
	return p.market.Connect(ctx)
}

func (p *PaperClient) Disconnect() error {
	return p.market.Disconnect()
}

func (p *PaperClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	return p.market.GetTicker(ctx, symbol)
}

func (p *PaperClient) GetTickers(ctx context.Context) ([]types.Ticker, error) {
	return p.market.GetTickers(ctx)
}

func (p *PaperClient) GetKlines(ctx context.Context, params KlineParams) ([]types.OHLCV, error) {
	return p.market.GetKlines(ctx, params)
}

func (p *PaperClient) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := p.balances[asset]
	return &types.Balance{
		Asset: asset,
		Free:  free,
		Total: free,
	}, nil
}

func (p *PaperClient) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var positions []Position
	for asset, amount := range p.balances {
		if asset == p.quote || amount <= 0 {
			continue
		}
		sym := asset + p.quote
		if symbol != "" && sym != symbol {
			continue
		}
		positions = append(positions, Position{
			Symbol: sym,
			Side:   "LONG",
			Size:   amount,
		})
	}
	return positions, nil
}

// PlaceOrder fills the order at the current market price. Paper fills are
// always complete; an order either executes fully or errors.
func (p *PaperClient) PlaceOrder(ctx context.Context, params OrderParams) (*Order, error) {
	if params.Quantity <= 0 {
		return nil, NewExchangeError(p.GetName(), "", "quantity must be positive", false)
	}

	ticker, err := p.market.GetTicker(ctx, params.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to price paper order for %s: %w", params.Symbol, err)
	}

	price := ticker.LastPrice
	if params.Type == OrderTypeLimit && params.Price > 0 {
		price = params.Price
	}
	notional := price * params.Quantity
	fee := notional * paperFeeRate
	base := baseAsset(params.Symbol, p.quote)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch params.Side {
	case OrderSideBuy:
		if p.balances[p.quote] < notional+fee {
			return nil, NewExchangeError(p.GetName(), "", fmt.Sprintf(
				"insufficient %s balance: need %.2f, have %.2f",
				p.quote, notional+fee, p.balances[p.quote]), false)
		}
		p.balances[p.quote] -= notional + fee
		p.balances[base] += params.Quantity
	case OrderSideSell:
		if p.balances[base] < params.Quantity {
			return nil, NewExchangeError(p.GetName(), "", fmt.Sprintf(
				"insufficient %s balance: need %.8f, have %.8f",
				base, params.Quantity, p.balances[base]), false)
		}
		p.balances[base] -= params.Quantity
		p.balances[p.quote] += notional - fee
	default:
		return nil, NewExchangeError(p.GetName(), "", fmt.Sprintf("unknown order side %q", params.Side), false)
	}

	order := &Order{
		OrderID:     uuid.NewString(),
		Symbol:      params.Symbol,
		Side:        params.Side,
		Type:        params.Type,
		Status:      OrderStatusFilled,
		ExecutedQty: params.Quantity,
		Fills:       []Fill{{Price: price, Quantity: params.Quantity, Fee: fee}},
		CreatedAt:   time.Now(),
	}
	p.orders[order.OrderID] = order

	return order, nil
}

func (p *PaperClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return NewExchangeError(p.GetName(), "", fmt.Sprintf("order %s not found", orderID), false)
	}
	if order.Status == OrderStatusFilled {
		return NewExchangeError(p.GetName(), "", fmt.Sprintf("order %s already filled", orderID), false)
	}
	order.Status = OrderStatusCanceled
	return nil
}

func baseAsset(symbol, quote string) string {
	return strings.TrimSuffix(symbol, quote)
}
