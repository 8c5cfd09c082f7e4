package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/evanz1215/binance-trading-bot/internal/indicators"
	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// MACross signals on moving average crossovers with an RSI filter. A golden
// cross (fast above slow) buys unless RSI is already overbought; a death
// cross sells unless RSI is oversold.
type MACross struct {
	fast *indicators.SMA
	slow *indicators.SMA
	rsi  *indicators.RSI

	slowPeriod int
}

// NewMACross creates the default 10/30 crossover with a 14-period RSI filter.
func NewMACross() *MACross {
	return NewMACrossWithPeriods(10, 30, 14)
}

// NewMACrossWithPeriods creates a crossover strategy with explicit periods.
func NewMACrossWithPeriods(fast, slow, rsiPeriod int) *MACross {
	return &MACross{
		fast:       indicators.NewSMA(fast),
		slow:       indicators.NewSMA(slow),
		rsi:        indicators.NewRSI(rsiPeriod),
		slowPeriod: slow,
	}
}

func (m *MACross) GetName() string {
	return "ma_cross"
}

// RequiredPeriods returns the minimum klines needed to detect a cross, which
// needs the slow average on both the current and the previous bar.
func (m *MACross) RequiredPeriods() int {
	return m.slowPeriod + 2
}

func (m *MACross) Analyze(ctx context.Context, symbol string, klines []types.OHLCV) (*Signal, error) {
	if len(klines) < m.RequiredPeriods() {
		return nil, fmt.Errorf("need %d klines for %s, got %d", m.RequiredPeriods(), symbol, len(klines))
	}

	fastNow, err := m.fast.Calculate(klines)
	if err != nil {
		return nil, err
	}
	slowNow, err := m.slow.Calculate(klines)
	if err != nil {
		return nil, err
	}

	prev := len(klines) - 1
	fastPrev, err := m.fast.CalculateAt(klines, prev)
	if err != nil {
		return nil, err
	}
	slowPrev, err := m.slow.CalculateAt(klines, prev)
	if err != nil {
		return nil, err
	}

	rsi, err := m.rsi.Calculate(klines)
	if err != nil {
		return nil, err
	}

	goldenCross := fastPrev <= slowPrev && fastNow > slowNow
	deathCross := fastPrev >= slowPrev && fastNow < slowNow

	switch {
	case goldenCross && rsi < 70:
		return &Signal{
			Symbol:    symbol,
			Action:    ActionBuy,
			Strength:  crossStrength(fastNow, slowNow, rsi, true),
			Reason:    fmt.Sprintf("golden cross (fast %.4f > slow %.4f), RSI %.1f", fastNow, slowNow, rsi),
			Timestamp: time.Now(),
		}, nil

	case deathCross && rsi > 30:
		return &Signal{
			Symbol:    symbol,
			Action:    ActionSell,
			Strength:  crossStrength(fastNow, slowNow, rsi, false),
			Reason:    fmt.Sprintf("death cross (fast %.4f < slow %.4f), RSI %.1f", fastNow, slowNow, rsi),
			Timestamp: time.Now(),
		}, nil
	}

	return nil, nil
}

// crossStrength scores a cross by its separation and how much RSI headroom
// remains in the direction of the trade. Clamped to [0.5, 1.0] so a fresh
// cross always clears a reasonable strength floor.
func crossStrength(fast, slow, rsi float64, buy bool) float64 {
	separation := math.Abs(fast-slow) / slow // typically well under 1%

	var headroom float64
	if buy {
		headroom = (70 - rsi) / 70
	} else {
		headroom = (rsi - 30) / 70
	}

	strength := 0.5 + separation*20 + headroom*0.3
	return math.Min(math.Max(strength, 0.5), 1.0)
}
