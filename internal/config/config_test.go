package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "USDT", cfg.Trading.BaseCurrency)
	assert.Equal(t, "ma_cross", cfg.Trading.StrategyName)
	assert.Equal(t, 60*time.Second, cfg.Trading.CycleInterval)
	assert.Equal(t, 10, cfg.Trading.MaxPositions)
	assert.Equal(t, 0.05, cfg.Trading.PositionSizePct)
	assert.True(t, cfg.Trading.CloseOnStop)
	assert.Equal(t, "paper", cfg.Exchange.Mode)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MAX_POSITIONS", "5")
	t.Setenv("CYCLE_INTERVAL", "30s")
	t.Setenv("SYMBOL_WHITELIST", "btcusdt, ethusdt")
	t.Setenv("TRADING_MODE", "SIM")
	t.Setenv("CLOSE_POSITIONS_ON_STOP", "false")

	cfg := Load()

	assert.Equal(t, 5, cfg.Trading.MaxPositions)
	assert.Equal(t, 30*time.Second, cfg.Trading.CycleInterval)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Whitelist)
	assert.Equal(t, "sim", cfg.Exchange.Mode)
	assert.False(t, cfg.Trading.CloseOnStop)
}

func TestBareNumberIntervalIsSeconds(t *testing.T) {
	t.Setenv("CYCLE_INTERVAL", "90")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.Trading.CycleInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max positions", func(c *Config) { c.Trading.MaxPositions = 0 }},
		{"oversized position pct", func(c *Config) { c.Trading.PositionSizePct = 0.6 }},
		{"negative stop loss", func(c *Config) { c.Trading.StopLossPct = -0.05 }},
		{"take profit of one", func(c *Config) { c.Trading.TakeProfitPct = 1.0 }},
		{"daily loss of zero", func(c *Config) { c.Trading.MaxDailyLossPct = 0 }},
		{"sub-second cycle", func(c *Config) { c.Trading.CycleInterval = 100 * time.Millisecond }},
		{"unknown mode", func(c *Config) { c.Exchange.Mode = "backtest" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateLiveRequiresCredentials(t *testing.T) {
	cfg := Load()
	cfg.Exchange.Mode = "live"
	cfg.Exchange.Name = "binance"
	cfg.Exchange.Binance.APIKey = ""
	assert.Error(t, cfg.Validate())

	cfg.Exchange.Binance.APIKey = "key"
	cfg.Exchange.Binance.SecretKey = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Exchange.Name = "bybit"
	assert.Error(t, cfg.Validate(), "bybit credentials are separate from binance ones")

	cfg.Exchange.Bybit.APIKey = "key"
	cfg.Exchange.Bybit.APISecret = "secret"
	assert.NoError(t, cfg.Validate())
}
