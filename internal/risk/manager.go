package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
	"github.com/evanz1215/binance-trading-bot/internal/logger"
)

// RiskLevel classifies how close current losses are to the configured limits.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Position is a tracked open exposure to one symbol. The Manager owns the
// position map exclusively; callers receive copies.
type Position struct {
	Symbol        string
	Side          exchange.OrderSide
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	TakeProfit    float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// RiskMetrics is a derived snapshot, recomputed each cycle and never stored.
type RiskMetrics struct {
	TotalBalance     float64
	AvailableBalance float64
	PositionsValue   float64
	DailyPnL         float64
	TotalPnL         float64
	MaxDrawdown      float64
	PositionCount    int
	RiskLevel        RiskLevel
}

// TriggerResult reports which exit conditions fired on a price update.
type TriggerResult struct {
	StopLossTriggered   bool
	TakeProfitTriggered bool
}

// Manager is the gatekeeper for all position lifecycle transitions and the
// single source of truth for live exposure.
type Manager struct {
	client exchange.Client
	cfg    *config.TradingConfig
	log    *logger.Logger

	mu                  sync.Mutex
	positions           map[string]*Position
	sessionStartBalance float64
	dailyStartBalance   float64
	maxBalanceToday     float64
	dailyStartDate      time.Time
	dailyTradeCount     int

	now func() time.Time
}

// NewManager creates a risk manager. The logger may be nil in tests.
func NewManager(client exchange.Client, cfg *config.TradingConfig, log *logger.Logger) *Manager {
	return &Manager{
		client:    client,
		cfg:       cfg,
		log:       log,
		positions: make(map[string]*Position),
		now:       time.Now,
	}
}

// InitializeSession pulls the current balance and establishes the session
// baseline. The daily baseline is only reset when the calendar day changes,
// so warm restarts within the same day keep their loss accounting.
func (m *Manager) InitializeSession(ctx context.Context) error {
	var balance float64
	err := exchange.RetryRead(ctx, exchange.DefaultReadRetry(), func() error {
		b, err := m.client.GetBalance(ctx, m.cfg.BaseCurrency)
		if err != nil {
			return err
		}
		balance = b.Total
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialize risk session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessionStartBalance = balance

	today := dateOf(m.now())
	if m.dailyStartDate.IsZero() || !m.dailyStartDate.Equal(today) {
		m.dailyStartBalance = balance
		m.maxBalanceToday = balance
		m.dailyStartDate = today
		m.dailyTradeCount = 0
	}
	if balance > m.maxBalanceToday {
		m.maxBalanceToday = balance
	}

	m.logf("Risk management initialized - Balance: %.2f %s", balance, m.cfg.BaseCurrency)
	return nil
}

// GetCurrentMetrics computes a fresh risk snapshot. The balance is read from
// the exchange; position valuations use the prices applied by the last
// UpdatePositionPrices pass, so no per-position network calls happen here.
func (m *Manager) GetCurrentMetrics(ctx context.Context) (*RiskMetrics, error) {
	var total, available float64
	err := exchange.RetryRead(ctx, exchange.DefaultReadRetry(), func() error {
		b, err := m.client.GetBalance(ctx, m.cfg.BaseCurrency)
		if err != nil {
			return err
		}
		total, available = b.Total, b.Free
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for risk metrics: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDailyBaselineLocked(total)
	if total > m.maxBalanceToday {
		m.maxBalanceToday = total
	}

	var positionsValue float64
	for _, pos := range m.positions {
		price := pos.CurrentPrice
		if price == 0 {
			price = pos.EntryPrice
		}
		positionsValue += pos.Quantity * price
	}

	var dailyPnL, totalPnL float64
	if m.dailyStartBalance > 0 {
		dailyPnL = total - m.dailyStartBalance
	}
	if m.sessionStartBalance > 0 {
		totalPnL = total - m.sessionStartBalance
	}

	var drawdown float64
	if m.maxBalanceToday > 0 {
		drawdown = (m.maxBalanceToday - total) / m.maxBalanceToday
		if drawdown < 0 {
			drawdown = 0
		}
	}

	return &RiskMetrics{
		TotalBalance:     total,
		AvailableBalance: available,
		PositionsValue:   positionsValue,
		DailyPnL:         dailyPnL,
		TotalPnL:         totalPnL,
		MaxDrawdown:      drawdown,
		PositionCount:    len(m.positions),
		RiskLevel:        m.assessRiskLevelLocked(dailyPnL, drawdown),
	}, nil
}

// rollDailyBaselineLocked resets daily accounting when the calendar day has
// changed since the last observation.
func (m *Manager) rollDailyBaselineLocked(currentBalance float64) {
	today := dateOf(m.now())
	if !m.dailyStartDate.IsZero() && m.dailyStartDate.Equal(today) {
		return
	}
	m.dailyStartBalance = currentBalance
	m.maxBalanceToday = currentBalance
	m.dailyStartDate = today
	m.dailyTradeCount = 0
	m.logf("Daily risk baseline reset - Balance: %.2f", currentBalance)
}

// assessRiskLevelLocked derives the risk level from how much of each limit is
// consumed. 50/70/90 percent of either limit maps to MEDIUM/HIGH/CRITICAL;
// the worse metric wins.
func (m *Manager) assessRiskLevelLocked(dailyPnL, drawdown float64) RiskLevel {
	var dailyLossPct float64
	if m.dailyStartBalance > 0 && dailyPnL < 0 {
		dailyLossPct = -dailyPnL / m.dailyStartBalance
	}

	switch {
	case dailyLossPct > m.cfg.MaxDailyLossPct*0.9 || drawdown > m.cfg.MaxDrawdownPct*0.9:
		return RiskLevelCritical
	case dailyLossPct > m.cfg.MaxDailyLossPct*0.7 || drawdown > m.cfg.MaxDrawdownPct*0.7:
		return RiskLevelHigh
	case dailyLossPct > m.cfg.MaxDailyLossPct*0.5 || drawdown > m.cfg.MaxDrawdownPct*0.5:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Denial explains a rejected admission. Category comes from a small fixed
// vocabulary safe to use as a metric label; Reason carries the formatted
// human-readable detail.
type Denial struct {
	Category string
	Reason   string
}

// Denial categories.
const (
	DenyCriticalRisk = "critical_risk"
	DenyDailyLoss    = "daily_loss"
	DenyDrawdown     = "drawdown"
	DenyPositionCap  = "position_cap"
	DenyDuplicate    = "duplicate"
	DenyBalance      = "balance"
	DenySizeCap      = "size_cap"
)

// CanOpenPosition decides whether a new position may be opened. It is a pure
// function of the supplied metrics snapshot and the current position map, so
// one snapshot per cycle yields deterministic admission decisions. Checks run
// in a fixed order so rejection reasons are stable. An approval returns a
// zero Denial.
func (m *Manager) CanOpenPosition(metrics *RiskMetrics, symbol string, side exchange.OrderSide, notional float64) (bool, Denial) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if metrics.RiskLevel == RiskLevelCritical {
		return false, Denial{DenyCriticalRisk, "trading halted due to critical risk level"}
	}

	var dailyLossPct float64
	if m.dailyStartBalance > 0 {
		dailyLossPct = -metrics.DailyPnL / m.dailyStartBalance
	}
	if metrics.DailyPnL < 0 && dailyLossPct > m.cfg.MaxDailyLossPct {
		return false, Denial{DenyDailyLoss, fmt.Sprintf("daily loss limit exceeded: %.2f%%", dailyLossPct*100)}
	}

	if metrics.MaxDrawdown > m.cfg.MaxDrawdownPct {
		return false, Denial{DenyDrawdown, fmt.Sprintf("max drawdown exceeded: %.2f%%", metrics.MaxDrawdown*100)}
	}

	if len(m.positions) >= m.cfg.MaxPositions {
		return false, Denial{DenyPositionCap, fmt.Sprintf("maximum positions reached: %d", len(m.positions))}
	}

	if _, exists := m.positions[symbol]; exists {
		return false, Denial{DenyDuplicate, fmt.Sprintf("already have position in %s", symbol)}
	}

	if notional > metrics.AvailableBalance {
		return false, Denial{DenyBalance, fmt.Sprintf("insufficient balance: %.2f > %.2f", notional, metrics.AvailableBalance)}
	}

	maxPositionPct := m.cfg.PositionSizePct * 2 // Allow up to 2x nominal size
	if metrics.TotalBalance > 0 {
		positionPct := notional / metrics.TotalBalance
		if positionPct > maxPositionPct {
			return false, Denial{DenySizeCap, fmt.Sprintf("position size too large: %.2f%% > %.2f%%", positionPct*100, maxPositionPct*100)}
		}
	}

	return true, Denial{}
}

// CanClosePosition reports whether a close may proceed. Closing is never
// blocked by risk thresholds; de-risking must not be vetoed.
func (m *Manager) CanClosePosition(symbol string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[symbol]; !exists {
		return false, fmt.Sprintf("no position found for %s", symbol)
	}
	return true, "position closure approved"
}

// CalculateStopLoss places the stop on the losing side of entry.
func (m *Manager) CalculateStopLoss(side exchange.OrderSide, entryPrice float64) float64 {
	if side == exchange.OrderSideBuy {
		return entryPrice * (1 - m.cfg.StopLossPct)
	}
	return entryPrice * (1 + m.cfg.StopLossPct)
}

// CalculateTakeProfit places the target on the winning side of entry.
func (m *Manager) CalculateTakeProfit(side exchange.OrderSide, entryPrice float64) float64 {
	if side == exchange.OrderSideBuy {
		return entryPrice * (1 + m.cfg.TakeProfitPct)
	}
	return entryPrice * (1 - m.cfg.TakeProfitPct)
}

// AddPosition starts tracking a filled entry. Adding a symbol that is already
// tracked is a programming error and is rejected.
func (m *Manager) AddPosition(symbol string, side exchange.OrderSide, quantity, entryPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[symbol]; exists {
		return fmt.Errorf("position already tracked for %s", symbol)
	}

	pos := &Position{
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		StopLoss:     m.CalculateStopLoss(side, entryPrice),
		TakeProfit:   m.CalculateTakeProfit(side, entryPrice),
		OpenedAt:     m.now(),
	}
	m.positions[symbol] = pos
	m.dailyTradeCount++

	m.logf("Added position: %s %s %.8f @ %.4f (SL %.4f, TP %.4f)",
		symbol, side, quantity, entryPrice, pos.StopLoss, pos.TakeProfit)
	return nil
}

// RemovePosition stops tracking symbol and returns the final state of the
// position, including the realized P&L implied by its last price.
func (m *Manager) RemovePosition(symbol string) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[symbol]
	if !exists {
		return nil, fmt.Errorf("no position found for %s", symbol)
	}
	delete(m.positions, symbol)
	m.dailyTradeCount++

	closed := *pos
	m.logf("Removed position: %s (P&L %.2f)", symbol, closed.UnrealizedPnL)
	return &closed, nil
}

// UpdatePositionPrices re-prices one position and evaluates its exit
// conditions with directional comparison. Unknown symbols report no triggers.
func (m *Manager) UpdatePositionPrices(symbol string, currentPrice float64) TriggerResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[symbol]
	if !exists {
		return TriggerResult{}
	}

	var result TriggerResult
	if pos.Side == exchange.OrderSideBuy {
		if currentPrice <= pos.StopLoss {
			result.StopLossTriggered = true
		} else if currentPrice >= pos.TakeProfit {
			result.TakeProfitTriggered = true
		}
		pos.UnrealizedPnL = (currentPrice - pos.EntryPrice) * pos.Quantity
	} else {
		if currentPrice >= pos.StopLoss {
			result.StopLossTriggered = true
		} else if currentPrice <= pos.TakeProfit {
			result.TakeProfitTriggered = true
		}
		pos.UnrealizedPnL = (pos.EntryPrice - currentPrice) * pos.Quantity
	}
	pos.CurrentPrice = currentPrice

	return result
}

// GetPosition returns a copy of the tracked position for symbol.
func (m *Manager) GetPosition(symbol string) (*Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, exists := m.positions[symbol]
	if !exists {
		return nil, false
	}
	copied := *pos
	return &copied, true
}

// HasPosition reports whether symbol is currently tracked.
func (m *Manager) HasPosition(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.positions[symbol]
	return exists
}

// Positions returns a copy of all tracked positions.
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	return out
}

// PositionCount returns the number of open positions.
func (m *Manager) PositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// DailyTradeCount returns the number of position transitions today.
func (m *Manager) DailyTradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyTradeCount
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Info(format, args...)
	}
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
