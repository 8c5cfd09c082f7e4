package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evanz1215/binance-trading-bot/internal/safety"
	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

const (
	binanceMainnetURL = "https://api.binance.com"
	binanceTestnetURL = "https://testnet.binance.vision"
)

// BinanceClient implements the Client interface against the Binance spot
// REST API. Signed endpoints use HMAC-SHA256 request signing.
type BinanceClient struct {
	apiKey    string
	secretKey string
	baseURL   string
	client    *http.Client
	limiters  *safety.RateLimiterManager
	connected bool
}

// NewBinanceClient creates a new Binance spot client.
func NewBinanceClient(apiKey, secretKey string, testnet bool) *BinanceClient {
	baseURL := binanceMainnetURL
	if testnet {
		baseURL = binanceTestnetURL
	}

	return &BinanceClient{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiters: safety.NewRateLimiterManager(),
	}
}

// WithBaseURL overrides the API base URL, used for tests.
func (b *BinanceClient) WithBaseURL(baseURL string) *BinanceClient {
	b.baseURL = baseURL
	return b
}

func (b *BinanceClient) GetName() string {
	return "binance"
}

func (b *BinanceClient) Mode() string {
	return "live"
}

// Connect verifies connectivity and, when credentials are present, that the
// account endpoint accepts them.
func (b *BinanceClient) Connect(ctx context.Context) error {
	var timeData struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := b.publicGet(ctx, "/api/v3/time", nil, &timeData); err != nil {
		return fmt.Errorf("failed to connect to binance: %w", err)
	}

	if b.apiKey != "" {
		if _, err := b.GetBalance(ctx, "USDT"); err != nil {
			return fmt.Errorf("binance credential check failed: %w", err)
		}
	}

	b.connected = true
	return nil
}

func (b *BinanceClient) Disconnect() error {
	b.connected = false
	return nil
}

func (b *BinanceClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var data binanceTicker
	if err := b.publicGet(ctx, "/api/v3/ticker/24hr", params, &data); err != nil {
		return nil, fmt.Errorf("failed to get ticker for %s: %w", symbol, err)
	}

	return data.toTicker()
}

func (b *BinanceClient) GetTickers(ctx context.Context) ([]types.Ticker, error) {
	var data []binanceTicker
	if err := b.publicGet(ctx, "/api/v3/ticker/24hr", nil, &data); err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	tickers := make([]types.Ticker, 0, len(data))
	for _, td := range data {
		t, err := td.toTicker()
		if err != nil {
			continue
		}
		tickers = append(tickers, *t)
	}
	return tickers, nil
}

func (b *BinanceClient) GetKlines(ctx context.Context, p KlineParams) ([]types.OHLCV, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("interval", p.Interval)
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Start != nil {
		params.Set("startTime", strconv.FormatInt(p.Start.UnixMilli(), 10))
	}
	if p.End != nil {
		params.Set("endTime", strconv.FormatInt(p.End.UnixMilli(), 10))
	}

	var klinesData [][]interface{}
	if err := b.publicGet(ctx, "/api/v3/klines", params, &klinesData); err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", p.Symbol, err)
	}

	klines := make([]types.OHLCV, 0, len(klinesData))
	for _, kline := range klinesData {
		if len(kline) < 6 {
			continue
		}

		ts, ok := kline[0].(float64)
		if !ok {
			continue
		}
		open, _ := strconv.ParseFloat(asString(kline[1]), 64)
		high, _ := strconv.ParseFloat(asString(kline[2]), 64)
		low, _ := strconv.ParseFloat(asString(kline[3]), 64)
		closeP, _ := strconv.ParseFloat(asString(kline[4]), 64)
		volume, _ := strconv.ParseFloat(asString(kline[5]), 64)

		klines = append(klines, types.OHLCV{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    volume,
			Timestamp: time.Unix(int64(ts)/1000, 0),
		})
	}

	return klines, nil
}

func (b *BinanceClient) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	account, err := b.getAccount(ctx)
	if err != nil {
		return nil, err
	}

	for _, bal := range account.Balances {
		if bal.Asset != asset {
			continue
		}
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		return &types.Balance{
			Asset:  asset,
			Free:   free,
			Locked: locked,
			Total:  free + locked,
		}, nil
	}

	return &types.Balance{Asset: asset}, nil
}

// GetPositions reconstructs spot holdings from account balances. Quote and
// dust balances are skipped; the risk manager's book is authoritative.
func (b *BinanceClient) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	account, err := b.getAccount(ctx)
	if err != nil {
		return nil, err
	}

	var positions []Position
	for _, bal := range account.Balances {
		if bal.Asset == "USDT" || bal.Asset == "BUSD" {
			continue
		}
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		size := free + locked
		if size <= 0 {
			continue
		}

		sym := bal.Asset + "USDT"
		if symbol != "" && sym != symbol {
			continue
		}
		positions = append(positions, Position{
			Symbol: sym,
			Side:   "LONG",
			Size:   size,
		})
	}

	return positions, nil
}

func (b *BinanceClient) PlaceOrder(ctx context.Context, p OrderParams) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(p.Side))
	params.Set("type", string(p.Type))
	params.Set("quantity", formatQuantity(p.Quantity))
	if p.Type == OrderTypeLimit {
		params.Set("timeInForce", "GTC")
		params.Set("price", formatQuantity(p.Price))
	}

	var data struct {
		OrderID     int64  `json:"orderId"`
		Symbol      string `json:"symbol"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Fills       []struct {
			Price      string `json:"price"`
			Qty        string `json:"qty"`
			Commission string `json:"commission"`
		} `json:"fills"`
		TransactTime int64 `json:"transactTime"`
	}

	if err := b.signedRequest(ctx, http.MethodPost, "/api/v3/order", params, &data); err != nil {
		return nil, fmt.Errorf("failed to place %s order for %s: %w", p.Side, p.Symbol, err)
	}

	executedQty, _ := strconv.ParseFloat(data.ExecutedQty, 64)
	order := &Order{
		OrderID:     strconv.FormatInt(data.OrderID, 10),
		Symbol:      data.Symbol,
		Side:        p.Side,
		Type:        p.Type,
		Status:      OrderStatus(data.Status),
		ExecutedQty: executedQty,
		CreatedAt:   time.Unix(data.TransactTime/1000, 0),
	}
	for _, f := range data.Fills {
		price, _ := strconv.ParseFloat(f.Price, 64)
		qty, _ := strconv.ParseFloat(f.Qty, 64)
		fee, _ := strconv.ParseFloat(f.Commission, 64)
		order.Fills = append(order.Fills, Fill{Price: price, Quantity: qty, Fee: fee})
	}

	return order, nil
}

func (b *BinanceClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	var data struct {
		Status string `json:"status"`
	}
	if err := b.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params, &data); err != nil {
		return fmt.Errorf("failed to cancel order %s on %s: %w", orderID, symbol, err)
	}
	return nil
}

type binanceAccount struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

func (b *BinanceClient) getAccount(ctx context.Context) (*binanceAccount, error) {
	var account binanceAccount
	if err := b.signedRequest(ctx, http.MethodGet, "/api/v3/account", nil, &account); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	CloseTime          int64  `json:"closeTime"`
}

func (t binanceTicker) toTicker() (*types.Ticker, error) {
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price for %s: %w", t.Symbol, err)
	}
	changePct, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
	volume, _ := strconv.ParseFloat(t.Volume, 64)
	quoteVolume, _ := strconv.ParseFloat(t.QuoteVolume, 64)

	return &types.Ticker{
		Symbol:         t.Symbol,
		LastPrice:      price,
		PriceChangePct: changePct / 100,
		Volume:         volume,
		QuoteVolume:    quoteVolume,
		Timestamp:      time.Unix(t.CloseTime/1000, 0),
	}, nil
}

func (b *BinanceClient) publicGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	limiter := b.limiters.GetOrCreate("market", 20, 10)
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := b.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	return b.do(req, out)
}

func (b *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	limiter := b.limiters.GetOrCreate("trading", 10, 5)
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write([]byte(query))
	query += "&signature=" + hex.EncodeToString(mac.Sum(nil))

	endpoint := b.baseURL + path + "?" + query
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)

	return b.do(req, out)
}

func (b *BinanceClient) do(req *http.Request, out interface{}) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(body, &apiErr)

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= http.StatusInternalServerError
		msg := apiErr.Msg
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return NewExchangeError("binance", strconv.Itoa(apiErr.Code), msg, retryable)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// formatQuantity trims trailing zeros so the API does not reject values like
// "0.10000000" on symbols with coarse step sizes.
func formatQuantity(q float64) string {
	s := strconv.FormatFloat(q, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
