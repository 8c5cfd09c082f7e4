package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
)

func TestSymbolFilterWhitelist(t *testing.T) {
	sim := exchange.NewSimClient("USDT", 10_000, 1)
	cfg := &config.TradingConfig{
		BaseCurrency:      "USDT",
		Whitelist:         []string{"BTCUSDT", "ETHUSDT", "DOGEUSDT"},
		Blacklist:         []string{"DOGEUSDT"},
		DiscoveryInterval: time.Hour,
	}

	f := NewSymbolFilter(sim, cfg, nil)
	symbols, err := f.Symbols(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols, "blacklist must override the whitelist")
}

func TestSymbolFilterVolumeDiscovery(t *testing.T) {
	sim := exchange.NewSimClient("USDT", 10_000, 1)
	cfg := &config.TradingConfig{
		BaseCurrency:      "USDT",
		MinVolume24h:      1_000_000,
		Blacklist:         []string{"BNBUSDT"},
		DiscoveryInterval: time.Hour,
	}

	f := NewSymbolFilter(sim, cfg, nil)
	symbols, err := f.Symbols(context.Background())
	require.NoError(t, err)

	assert.Len(t, symbols, 3)
	assert.NotContains(t, symbols, "BNBUSDT")
}

func TestSymbolFilterVolumeFloor(t *testing.T) {
	sim := exchange.NewSimClient("USDT", 10_000, 1)
	cfg := &config.TradingConfig{
		BaseCurrency:      "USDT",
		MinVolume24h:      1e12,
		DiscoveryInterval: time.Hour,
	}

	f := NewSymbolFilter(sim, cfg, nil)
	symbols, err := f.Symbols(context.Background())
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestSymbolFilterCachesBetweenRefreshes(t *testing.T) {
	sim := exchange.NewSimClient("USDT", 10_000, 1)
	cfg := &config.TradingConfig{
		BaseCurrency:      "USDT",
		Whitelist:         []string{"BTCUSDT"},
		DiscoveryInterval: time.Hour,
	}

	f := NewSymbolFilter(sim, cfg, nil)
	first, err := f.Symbols(context.Background())
	require.NoError(t, err)

	// Mutating the config after the first refresh must not change the cached
	// set until the interval elapses.
	cfg.Whitelist = []string{"ETHUSDT"}
	second, err := f.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
