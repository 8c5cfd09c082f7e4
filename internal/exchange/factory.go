package exchange

import (
	"fmt"
	"time"

	"github.com/evanz1215/binance-trading-bot/internal/config"
)

// defaultPaperBalance funds paper accounts when no live balance exists.
const defaultPaperBalance = 10_000

// NewClient builds the exchange client selected by the configuration.
// Sim mode needs no credentials; paper mode wraps the real exchange's market
// data in a simulated account; live mode trades for real.
func NewClient(cfg *config.Config) (Client, error) {
	ex := cfg.Exchange
	quote := cfg.Trading.BaseCurrency

	switch ex.Mode {
	case "sim":
		return NewSimClient(quote, defaultPaperBalance, time.Now().UnixNano()), nil

	case "paper":
		market, err := newLiveClient(ex)
		if err != nil {
			return nil, err
		}
		return NewPaperClient(market, quote, defaultPaperBalance), nil

	case "live":
		return newLiveClient(ex)

	default:
		return nil, fmt.Errorf("unsupported trading mode: %s", ex.Mode)
	}
}

func newLiveClient(ex config.ExchangeConfig) (Client, error) {
	switch ex.Name {
	case "binance":
		client := NewBinanceClient(ex.Binance.APIKey, ex.Binance.SecretKey, ex.Binance.Testnet)
		if ex.Binance.BaseURL != "" {
			client.WithBaseURL(ex.Binance.BaseURL)
		}
		return client, nil
	case "bybit":
		return NewBybitClient(ex.Bybit.APIKey, ex.Bybit.APISecret, ex.Bybit.Demo), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", ex.Name)
	}
}
