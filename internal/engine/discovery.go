package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
	"github.com/evanz1215/binance-trading-bot/internal/logger"
)

// maxDiscoveredSymbols bounds the monitored set when discovery runs off
// volume ranking rather than an explicit whitelist.
const maxDiscoveredSymbols = 30

// SymbolFilter selects the monitored symbol set. With a whitelist it is a
// static list; otherwise symbols are ranked by 24h quote volume above the
// configured floor. The set refreshes on a fixed interval.
type SymbolFilter struct {
	client exchange.Client
	cfg    *config.TradingConfig
	log    *logger.Logger

	mu          sync.Mutex
	symbols     []string
	lastRefresh time.Time
}

// NewSymbolFilter creates a symbol filter. The logger may be nil.
func NewSymbolFilter(client exchange.Client, cfg *config.TradingConfig, log *logger.Logger) *SymbolFilter {
	return &SymbolFilter{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// Symbols returns the monitored set, refreshing it when stale. A failed
// refresh falls back to the previous set so one bad cycle does not blank
// the universe.
func (f *SymbolFilter) Symbols(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	stale := f.lastRefresh.IsZero() || time.Since(f.lastRefresh) >= f.cfg.DiscoveryInterval
	cached := make([]string, len(f.symbols))
	copy(cached, f.symbols)
	f.mu.Unlock()

	if !stale {
		return cached, nil
	}

	fresh, err := f.discover(ctx)
	if err != nil {
		if len(cached) > 0 {
			if f.log != nil {
				f.log.Warning("Symbol discovery failed, keeping %d cached symbols: %v", len(cached), err)
			}
			return cached, nil
		}
		return nil, err
	}

	f.mu.Lock()
	f.symbols = fresh
	f.lastRefresh = time.Now()
	f.mu.Unlock()

	if f.log != nil {
		f.log.Info("Monitoring %d symbols: %s", len(fresh), strings.Join(fresh, ", "))
	}
	return fresh, nil
}

func (f *SymbolFilter) discover(ctx context.Context) ([]string, error) {
	blacklisted := make(map[string]bool, len(f.cfg.Blacklist))
	for _, s := range f.cfg.Blacklist {
		blacklisted[s] = true
	}

	if len(f.cfg.Whitelist) > 0 {
		var out []string
		for _, s := range f.cfg.Whitelist {
			if !blacklisted[s] {
				out = append(out, s)
			}
		}
		return out, nil
	}

	var tickers []struct {
		symbol string
		volume float64
	}
	err := exchange.RetryRead(ctx, exchange.DefaultReadRetry(), func() error {
		all, err := f.client.GetTickers(ctx)
		if err != nil {
			return err
		}
		tickers = tickers[:0]
		for _, t := range all {
			if !strings.HasSuffix(t.Symbol, f.cfg.BaseCurrency) {
				continue
			}
			if blacklisted[t.Symbol] || t.QuoteVolume < f.cfg.MinVolume24h {
				continue
			}
			tickers = append(tickers, struct {
				symbol string
				volume float64
			}{t.Symbol, t.QuoteVolume})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover symbols: %w", err)
	}

	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].volume > tickers[j].volume
	})
	if len(tickers) > maxDiscoveredSymbols {
		tickers = tickers[:maxDiscoveredSymbols]
	}

	out := make([]string, len(tickers))
	for i, t := range tickers {
		out[i] = t.symbol
	}
	return out, nil
}
