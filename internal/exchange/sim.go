package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// SimClient is a self-contained exchange with synthetic random-walk prices.
// It needs no network and is deterministic under a fixed seed, which makes it
// the test double for the engine and a dry-run mode for operators.
type SimClient struct {
	quote string
	rng   *rand.Rand

	mu       sync.Mutex
	prices   map[string]float64
	balances map[string]float64
	orders   map[string]*Order

	// Hooks for tests.
	placeErr   map[string]error
	rejectNext map[string]bool
}

// NewSimClient creates a simulated exchange funded with initialBalance of the
// quote asset and seeded with a default symbol universe.
func NewSimClient(quote string, initialBalance float64, seed int64) *SimClient {
	s := &SimClient{
		quote: quote,
		rng:   rand.New(rand.NewSource(seed)),
		prices: map[string]float64{
			"BTC" + quote: 50000,
			"ETH" + quote: 3000,
			"SOL" + quote: 150,
			"BNB" + quote: 500,
		},
		balances: map[string]float64{
			quote: initialBalance,
		},
		orders:     make(map[string]*Order),
		placeErr:   make(map[string]error),
		rejectNext: make(map[string]bool),
	}
	return s
}

func (s *SimClient) GetName() string {
	return "sim"
}

func (s *SimClient) Mode() string {
	return "sim"
}

func (s *SimClient) Connect(ctx context.Context) error {
	return nil
}

func (s *SimClient) Disconnect() error {
	return nil
}

// SetPrice pins a symbol's price, creating the symbol if needed.
func (s *SimClient) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// FailNextOrder makes the next PlaceOrder for symbol return err.
func (s *SimClient) FailNextOrder(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeErr[symbol] = err
}

// RejectNextOrder makes the next PlaceOrder for symbol return a REJECTED
// order instead of a fill.
func (s *SimClient) RejectNextOrder(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext[symbol] = true
}

// SetBalance overrides an asset balance.
func (s *SimClient) SetBalance(asset string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = amount
}

// step advances a price by a small random walk.
func (s *SimClient) step(price float64) float64 {
	drift := (s.rng.Float64() - 0.5) * 0.002
	next := price * (1 + drift)
	return math.Max(next, 0.0001)
}

func (s *SimClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		return nil, NewExchangeError("sim", "", fmt.Sprintf("unknown symbol %s", symbol), false)
	}
	price = s.step(price)
	s.prices[symbol] = price

	return &types.Ticker{
		Symbol:      symbol,
		LastPrice:   price,
		Volume:      1_000_000 / price,
		QuoteVolume: 5_000_000,
		Timestamp:   time.Now(),
	}, nil
}

func (s *SimClient) GetTickers(ctx context.Context) ([]types.Ticker, error) {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.prices))
	for sym := range s.prices {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	tickers := make([]types.Ticker, 0, len(symbols))
	for _, sym := range symbols {
		t, err := s.GetTicker(ctx, sym)
		if err != nil {
			continue
		}
		tickers = append(tickers, *t)
	}
	return tickers, nil
}

// GetKlines synthesizes a random-walk history ending at the current price.
func (s *SimClient) GetKlines(ctx context.Context, p KlineParams) ([]types.OHLCV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[p.Symbol]
	if !ok {
		return nil, NewExchangeError("sim", "", fmt.Sprintf("unknown symbol %s", p.Symbol), false)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 200
	}
	step := intervalDuration(p.Interval)

	// Walk backwards from the current price so the series converges on it.
	closes := make([]float64, limit)
	closes[limit-1] = price
	for i := limit - 2; i >= 0; i-- {
		drift := (s.rng.Float64() - 0.5) * 0.004
		closes[i] = math.Max(closes[i+1]*(1-drift), 0.0001)
	}

	now := time.Now().Truncate(step)
	klines := make([]types.OHLCV, limit)
	for i := 0; i < limit; i++ {
		c := closes[i]
		o := c
		if i > 0 {
			o = closes[i-1]
		}
		klines[i] = types.OHLCV{
			Open:      o,
			High:      math.Max(o, c) * 1.001,
			Low:       math.Min(o, c) * 0.999,
			Close:     c,
			Volume:    1000 + s.rng.Float64()*500,
			Timestamp: now.Add(-time.Duration(limit-1-i) * step),
		}
	}

	return klines, nil
}

func (s *SimClient) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	free := s.balances[asset]
	return &types.Balance{
		Asset: asset,
		Free:  free,
		Total: free,
	}, nil
}

func (s *SimClient) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []Position
	for asset, amount := range s.balances {
		if asset == s.quote || amount <= 0 {
			continue
		}
		sym := asset + s.quote
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

func (s *SimClient) PlaceOrder(ctx context.Context, params OrderParams) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.placeErr[params.Symbol]; ok {
		delete(s.placeErr, params.Symbol)
		return nil, err
	}

	price, ok := s.prices[params.Symbol]
	if !ok {
		return nil, NewExchangeError("sim", "", fmt.Sprintf("unknown symbol %s", params.Symbol), false)
	}

	if s.rejectNext[params.Symbol] {
		delete(s.rejectNext, params.Symbol)
		return &Order{
			OrderID:   uuid.NewString(),
			Symbol:    params.Symbol,
			Side:      params.Side,
			Type:      params.Type,
			Status:    OrderStatusRejected,
			CreatedAt: time.Now(),
		}, nil
	}

	notional := price * params.Quantity
	fee := notional * paperFeeRate
	base := strings.TrimSuffix(params.Symbol, s.quote)

	switch params.Side {
	case OrderSideBuy:
		if s.balances[s.quote] < notional+fee {
			return nil, NewExchangeError("sim", "", fmt.Sprintf(
				"insufficient %s balance: need %.2f, have %.2f",
				s.quote, notional+fee, s.balances[s.quote]), false)
		}
		s.balances[s.quote] -= notional + fee
		s.balances[base] += params.Quantity
	case OrderSideSell:
		if s.balances[base] < params.Quantity {
			return nil, NewExchangeError("sim", "", fmt.Sprintf(
				"insufficient %s balance: need %.8f, have %.8f",
				base, params.Quantity, s.balances[base]), false)
		}
		s.balances[base] -= params.Quantity
		s.balances[s.quote] += notional - fee
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
	s.orders[order.OrderID] = order

	return order, nil
}

func (s *SimClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return NewExchangeError("sim", "", fmt.Sprintf("order %s not found", orderID), false)
	}
	if order.Status == OrderStatusFilled {
		return NewExchangeError("sim", "", fmt.Sprintf("order %s already filled", orderID), false)
	}
	order.Status = OrderStatusCanceled
	return nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
