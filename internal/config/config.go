package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete configuration for the trading engine.
type Config struct {
	Trading       TradingConfig
	Exchange      ExchangeConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Notifications NotificationConfig
	Monitoring    MonitoringConfig
}

// TradingConfig holds the engine and risk parameters.
type TradingConfig struct {
	BaseCurrency      string        // Quote asset used for balances (USDT)
	StrategyName      string        // Signal provider name (ma_cross, ...)
	Interval          string        // Kline timeframe for analysis (1h, 15m, ...)
	CycleInterval     time.Duration // Cadence of the engine loop
	MaxPositions      int           // Hard cap on concurrently open positions
	PositionSizePct   float64       // Nominal position size as fraction of balance
	StopLossPct       float64       // Stop-loss offset from entry
	TakeProfitPct     float64       // Take-profit offset from entry
	MaxDailyLossPct   float64       // Daily loss cap as fraction of daily baseline
	MaxDrawdownPct    float64       // Intraday drawdown cap vs peak balance
	MinSignalStrength float64       // Signals below this are ignored for entries
	MinVolume24h      float64       // Symbol discovery volume floor (quote volume)
	Whitelist         []string      // If set, only these symbols are monitored
	Blacklist         []string      // Never monitored
	DiscoveryInterval time.Duration // How often the monitored set is refreshed
	CloseOnStop       bool          // Liquidate open positions on Stop()
	ReportDir         string        // Where session trade reports (xlsx) are written
}

// ExchangeConfig selects and configures the exchange client.
type ExchangeConfig struct {
	Name    string // binance, bybit
	Mode    string // live, paper, sim
	Binance BinanceConfig
	Bybit   BybitConfig
}

// BinanceConfig holds Binance API credentials.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	BaseURL   string
}

// BybitConfig holds Bybit API credentials.
type BybitConfig struct {
	APIKey    string
	APISecret string
	Demo      bool
}

// DatabaseConfig configures the session recorder store.
type DatabaseConfig struct {
	URL string // postgres DSN; empty selects the in-memory recorder
}

// RedisConfig configures the optional status snapshot publisher.
type RedisConfig struct {
	Addr     string // empty disables publishing
	Password string
	DB       int
}

// NotificationConfig holds notification settings.
type NotificationConfig struct {
	TelegramToken     string
	TelegramChatID    string
	DiscordWebhookURL string
}

// MonitoringConfig holds the HTTP surface ports.
type MonitoringConfig struct {
	APIPort        int
	PrometheusPort int
}

// Load reads configuration from the environment, consulting a .env file when
// present. Missing values fall back to defaults; Validate catches the rest.
func Load() *Config {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		Trading: TradingConfig{
			BaseCurrency:      getEnv("BASE_CURRENCY", "USDT"),
			StrategyName:      getEnv("STRATEGY", "ma_cross"),
			Interval:          getEnv("ANALYSIS_INTERVAL", "1h"),
			CycleInterval:     getEnvDuration("CYCLE_INTERVAL", 60*time.Second),
			MaxPositions:      getEnvInt("MAX_POSITIONS", 10),
			PositionSizePct:   getEnvFloat("POSITION_SIZE_PCT", 0.05),
			StopLossPct:       getEnvFloat("STOP_LOSS_PCT", 0.05),
			TakeProfitPct:     getEnvFloat("TAKE_PROFIT_PCT", 0.10),
			MaxDailyLossPct:   getEnvFloat("MAX_DAILY_LOSS_PCT", 0.10),
			MaxDrawdownPct:    getEnvFloat("MAX_DRAWDOWN_PCT", 0.15),
			MinSignalStrength: getEnvFloat("MIN_SIGNAL_STRENGTH", 0.6),
			MinVolume24h:      getEnvFloat("MIN_VOLUME_24H", 1_000_000),
			Whitelist:         getEnvList("SYMBOL_WHITELIST"),
			Blacklist:         getEnvList("SYMBOL_BLACKLIST"),
			DiscoveryInterval: getEnvDuration("DISCOVERY_INTERVAL", 30*time.Minute),
			CloseOnStop:       getEnvBool("CLOSE_POSITIONS_ON_STOP", true),
			ReportDir:         getEnv("REPORT_DIR", "reports"),
		},
		Exchange: ExchangeConfig{
			Name: strings.ToLower(getEnv("EXCHANGE", "binance")),
			Mode: strings.ToLower(getEnv("TRADING_MODE", "paper")),
			Binance: BinanceConfig{
				APIKey:    getEnv("BINANCE_API_KEY", ""),
				SecretKey: getEnv("BINANCE_SECRET_KEY", ""),
				Testnet:   getEnvBool("BINANCE_TESTNET", false),
				BaseURL:   getEnv("BINANCE_BASE_URL", ""),
			},
			Bybit: BybitConfig{
				APIKey:    getEnv("BYBIT_API_KEY", ""),
				APISecret: getEnv("BYBIT_API_SECRET", ""),
				Demo:      getEnvBool("BYBIT_DEMO", false),
			},
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Notifications: NotificationConfig{
			TelegramToken:     getEnv("TELEGRAM_TOKEN", ""),
			TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
		Monitoring: MonitoringConfig{
			APIPort:        getEnvInt("API_PORT", 8080),
			PrometheusPort: getEnvInt("PROMETHEUS_PORT", 9090),
		},
	}

	return cfg
}

// Validate checks for fatal configuration errors. The engine refuses to start
// on any of these; nothing partially initializes.
func (c *Config) Validate() error {
	t := c.Trading

	if t.MaxPositions <= 0 {
		return fmt.Errorf("MAX_POSITIONS must be positive, got %d", t.MaxPositions)
	}
	if t.PositionSizePct <= 0 || t.PositionSizePct > 0.5 {
		return fmt.Errorf("POSITION_SIZE_PCT must be in (0, 0.5], got %.4f", t.PositionSizePct)
	}
	if t.StopLossPct <= 0 || t.StopLossPct >= 1 {
		return fmt.Errorf("STOP_LOSS_PCT must be in (0, 1), got %.4f", t.StopLossPct)
	}
	if t.TakeProfitPct <= 0 || t.TakeProfitPct >= 1 {
		return fmt.Errorf("TAKE_PROFIT_PCT must be in (0, 1), got %.4f", t.TakeProfitPct)
	}
	if t.MaxDailyLossPct <= 0 || t.MaxDailyLossPct >= 1 {
		return fmt.Errorf("MAX_DAILY_LOSS_PCT must be in (0, 1), got %.4f", t.MaxDailyLossPct)
	}
	if t.MaxDrawdownPct <= 0 || t.MaxDrawdownPct >= 1 {
		return fmt.Errorf("MAX_DRAWDOWN_PCT must be in (0, 1), got %.4f", t.MaxDrawdownPct)
	}
	if t.CycleInterval < time.Second {
		return fmt.Errorf("CYCLE_INTERVAL must be at least 1s, got %s", t.CycleInterval)
	}

	switch c.Exchange.Mode {
	case "live", "paper", "sim":
	default:
		return fmt.Errorf("TRADING_MODE must be live, paper or sim, got %q", c.Exchange.Mode)
	}

	if c.Exchange.Mode == "live" {
		switch c.Exchange.Name {
		case "binance":
			if c.Exchange.Binance.APIKey == "" || c.Exchange.Binance.SecretKey == "" {
				return fmt.Errorf("live trading on binance requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
			}
		case "bybit":
			if c.Exchange.Bybit.APIKey == "" || c.Exchange.Bybit.APISecret == "" {
				return fmt.Errorf("live trading on bybit requires BYBIT_API_KEY and BYBIT_API_SECRET")
			}
		default:
			return fmt.Errorf("EXCHANGE must be binance or bybit, got %q", c.Exchange.Name)
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are treated as seconds, matching the original env files.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
