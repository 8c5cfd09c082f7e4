package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

const bybitDemoURL = "https://api-demo.bybit.com"

// BybitClient implements the Client interface against the Bybit v5 unified
// trading API for the spot category.
type BybitClient struct {
	http      *bybit_api.Client
	demo      bool
	connected bool
}

// NewBybitClient creates a new Bybit spot client. Demo mode points at Bybit's
// demo trading environment, which accepts the same API surface.
func NewBybitClient(apiKey, apiSecret string, demo bool) *BybitClient {
	baseURL := bybit_api.MAINNET
	if demo {
		baseURL = bybitDemoURL
	}

	return &BybitClient{
		http: bybit_api.NewBybitHttpClient(
			apiKey,
			apiSecret,
			bybit_api.WithBaseURL(baseURL),
		),
		demo: demo,
	}
}

func (b *BybitClient) GetName() string {
	return "bybit"
}

func (b *BybitClient) Mode() string {
	if b.demo {
		return "paper"
	}
	return "live"
}

func (b *BybitClient) Connect(ctx context.Context) error {
	// A ticker read exercises connectivity without touching the account.
	if _, err := b.GetTicker(ctx, "BTCUSDT"); err != nil {
		return fmt.Errorf("failed to connect to bybit: %w", err)
	}
	b.connected = true
	return nil
}

func (b *BybitClient) Disconnect() error {
	b.connected = false
	return nil
}

func (b *BybitClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker for %s: %w", symbol, err)
	}

	tickers, err := parseBybitTickers(resp)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, NewExchangeError("bybit", "", fmt.Sprintf("no ticker data for %s", symbol), false)
	}
	return &tickers[0], nil
}

func (b *BybitClient) GetTickers(ctx context.Context) ([]types.Ticker, error) {
	params := map[string]interface{}{
		"category": "spot",
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	return parseBybitTickers(resp)
}

func (b *BybitClient) GetKlines(ctx context.Context, p KlineParams) ([]types.OHLCV, error) {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   p.Symbol,
		"interval": bybitInterval(p.Interval),
	}
	if p.Limit > 0 {
		params["limit"] = p.Limit
	}
	if p.Start != nil {
		params["start"] = p.Start.UnixMilli()
	}
	if p.End != nil {
		params["end"] = p.End.UnixMilli()
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", p.Symbol, err)
	}

	var result struct {
		List [][]string `json:"list"`
	}
	if err := parseBybitResult(resp, &result); err != nil {
		return nil, err
	}

	// Bybit returns klines newest first; callers expect ascending order.
	klines := make([]types.OHLCV, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}

		ts, _ := strconv.ParseInt(row[0], 10, 64)
		open, _ := strconv.ParseFloat(row[1], 64)
		high, _ := strconv.ParseFloat(row[2], 64)
		low, _ := strconv.ParseFloat(row[3], 64)
		closeP, _ := strconv.ParseFloat(row[4], 64)
		volume, _ := strconv.ParseFloat(row[5], 64)

		klines = append(klines, types.OHLCV{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    volume,
			Timestamp: time.Unix(ts/1000, 0),
		})
	}

	return klines, nil
}

func (b *BybitClient) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	coins, err := b.walletCoins(ctx)
	if err != nil {
		return nil, err
	}

	for _, coin := range coins {
		if coin.Coin != asset {
			continue
		}
		total, _ := strconv.ParseFloat(coin.WalletBalance, 64)
		locked, _ := strconv.ParseFloat(coin.Locked, 64)
		return &types.Balance{
			Asset:  asset,
			Free:   total - locked,
			Locked: locked,
			Total:  total,
		}, nil
	}

	return &types.Balance{Asset: asset}, nil
}

// GetPositions reconstructs spot holdings from the unified wallet, skipping
// stablecoin balances.
func (b *BybitClient) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	coins, err := b.walletCoins(ctx)
	if err != nil {
		return nil, err
	}

	var positions []Position
	for _, coin := range coins {
		if coin.Coin == "USDT" || coin.Coin == "USDC" {
			continue
		}
		total, _ := strconv.ParseFloat(coin.WalletBalance, 64)
		if total <= 0 {
			continue
		}

		sym := coin.Coin + "USDT"
		if symbol != "" && sym != symbol {
			continue
		}
		positions = append(positions, Position{
			Symbol: sym,
			Side:   "LONG",
			Size:   total,
		})
	}

	return positions, nil
}

func (b *BybitClient) PlaceOrder(ctx context.Context, p OrderParams) (*Order, error) {
	side := "Buy"
	if p.Side == OrderSideSell {
		side = "Sell"
	}
	orderType := "Market"
	if p.Type == OrderTypeLimit {
		orderType = "Limit"
	}

	params := map[string]interface{}{
		"category":  "spot",
		"symbol":    p.Symbol,
		"side":      side,
		"orderType": orderType,
		"qty":       formatQuantity(p.Quantity),
		// Base-denominated quantity for market orders; the spot default is
		// quote-denominated.
		"marketUnit": "baseCoin",
	}
	if p.Type == OrderTypeLimit {
		params["price"] = formatQuantity(p.Price)
		params["timeInForce"] = "GTC"
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s order for %s: %w", p.Side, p.Symbol, err)
	}

	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := parseBybitResult(resp, &placed); err != nil {
		return nil, err
	}

	order := &Order{
		OrderID:   placed.OrderID,
		Symbol:    p.Symbol,
		Side:      p.Side,
		Type:      p.Type,
		Status:    OrderStatusNew,
		CreatedAt: time.Now(),
	}

	// Order placement only returns an ID; the status and fills come from a
	// follow-up lookup. A failed lookup leaves the order NEW, which callers
	// treat as not executed.
	if filled, err := b.getOrder(ctx, p.Symbol, placed.OrderID); err == nil && filled != nil {
		order.Status = filled.Status
		order.ExecutedQty = filled.ExecutedQty
		order.Fills = filled.Fills
	}

	return order, nil
}

func (b *BybitClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s on %s: %w", orderID, symbol, err)
	}
	return parseBybitResult(resp, nil)
}

// getOrder looks up an order by ID, consulting history first since executed
// market orders leave the realtime list immediately.
func (b *BybitClient) getOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			OrderStatus string `json:"orderStatus"`
			CumExecQty  string `json:"cumExecQty"`
			CumExecFee  string `json:"cumExecFee"`
			AvgPrice    string `json:"avgPrice"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := parseBybitResult(resp, &result); err != nil {
		return nil, err
	}

	for _, od := range result.List {
		if od.OrderID != orderID {
			continue
		}

		qty, _ := strconv.ParseFloat(od.CumExecQty, 64)
		avgPrice, _ := strconv.ParseFloat(od.AvgPrice, 64)
		fee, _ := strconv.ParseFloat(od.CumExecFee, 64)
		createdMs, _ := strconv.ParseInt(od.CreatedTime, 10, 64)

		order := &Order{
			OrderID:     od.OrderID,
			Symbol:      od.Symbol,
			Side:        bybitSide(od.Side),
			Type:        bybitOrderType(od.OrderType),
			Status:      bybitStatus(od.OrderStatus),
			ExecutedQty: qty,
			CreatedAt:   time.Unix(createdMs/1000, 0),
		}
		if qty > 0 && avgPrice > 0 {
			order.Fills = []Fill{{Price: avgPrice, Quantity: qty, Fee: fee}}
		}
		return order, nil
	}

	return nil, nil
}

type bybitWalletCoin struct {
	Coin          string `json:"coin"`
	WalletBalance string `json:"walletBalance"`
	Locked        string `json:"locked"`
}

func (b *BybitClient) walletCoins(ctx context.Context) ([]bybitWalletCoin, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}

	resp, err := b.http.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	var result struct {
		List []struct {
			Coin []bybitWalletCoin `json:"coin"`
		} `json:"list"`
	}
	if err := parseBybitResult(resp, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}
	return result.List[0].Coin, nil
}

func parseBybitTickers(resp interface{}) ([]types.Ticker, error) {
	var result struct {
		List []struct {
			Symbol       string `json:"symbol"`
			LastPrice    string `json:"lastPrice"`
			Price24hPcnt string `json:"price24hPcnt"`
			Volume24h    string `json:"volume24h"`
			Turnover24h  string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := parseBybitResult(resp, &result); err != nil {
		return nil, err
	}

	tickers := make([]types.Ticker, 0, len(result.List))
	now := time.Now()
	for _, td := range result.List {
		price, err := strconv.ParseFloat(td.LastPrice, 64)
		if err != nil {
			continue
		}
		changePct, _ := strconv.ParseFloat(td.Price24hPcnt, 64)
		volume, _ := strconv.ParseFloat(td.Volume24h, 64)
		turnover, _ := strconv.ParseFloat(td.Turnover24h, 64)

		tickers = append(tickers, types.Ticker{
			Symbol:         td.Symbol,
			LastPrice:      price,
			PriceChangePct: changePct,
			Volume:         volume,
			QuoteVolume:    turnover,
			Timestamp:      now,
		})
	}
	return tickers, nil
}

// parseBybitResult validates a ServerResponse and unmarshals its Result into
// out when out is non-nil.
func parseBybitResult(resp interface{}, out interface{}) error {
	serverResp, ok := resp.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid bybit response type")
	}

	if serverResp.RetCode != 0 {
		// 10006 is Bybit's rate limit code.
		retryable := serverResp.RetCode == 10006
		return NewExchangeError("bybit", strconv.Itoa(serverResp.RetCode), serverResp.RetMsg, retryable)
	}

	if out == nil {
		return nil
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal bybit result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal bybit result: %w", err)
	}
	return nil
}

func bybitInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	default:
		return interval
	}
}

func bybitSide(side string) OrderSide {
	if side == "Sell" {
		return OrderSideSell
	}
	return OrderSideBuy
}

func bybitOrderType(orderType string) OrderType {
	if orderType == "Limit" {
		return OrderTypeLimit
	}
	return OrderTypeMarket
}

func bybitStatus(status string) OrderStatus {
	switch status {
	case "Filled":
		return OrderStatusFilled
	case "PartiallyFilled", "PartiallyFilledCanceled":
		return OrderStatusPartiallyFilled
	case "New", "Created", "Untriggered":
		return OrderStatusNew
	case "Cancelled", "Deactivated":
		return OrderStatusCanceled
	case "Rejected":
		return OrderStatusRejected
	default:
		return OrderStatus(status)
	}
}
