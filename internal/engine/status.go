package engine

import (
	"time"

	"github.com/evanz1215/binance-trading-bot/internal/risk"
)

// Status is a point-in-time view of the engine for the HTTP surface and the
// state cache. All values come from the last completed cycle; reading status
// never touches the exchange.
type Status struct {
	State                State      `json:"state"`
	IsRunning            bool       `json:"is_running"`
	SessionID            string     `json:"session_id,omitempty"`
	StrategyName         string     `json:"strategy_name"`
	Exchange             string     `json:"exchange"`
	Mode                 string     `json:"mode"`
	MonitoredSymbolCount int        `json:"monitored_symbol_count"`
	OpenPositionCount    int        `json:"open_position_count"`
	RiskLevel            string     `json:"risk_level"`
	TotalBalance         float64    `json:"total_balance"`
	DailyPnL             float64    `json:"daily_pnl"`
	TotalPnL             float64    `json:"total_pnl"`
	SessionStart         *time.Time `json:"session_start,omitempty"`
	Timestamp            time.Time  `json:"timestamp"`
}

// GetStatus reports the engine state from cached per-cycle data.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:                c.state,
		IsRunning:            c.state == StateRunning,
		StrategyName:         c.provider.GetName(),
		Exchange:             c.client.GetName(),
		Mode:                 c.client.Mode(),
		MonitoredSymbolCount: len(c.symbols),
		OpenPositionCount:    c.riskMgr.PositionCount(),
		RiskLevel:            string(c.lastMetrics.RiskLevel),
		TotalBalance:         c.lastMetrics.TotalBalance,
		DailyPnL:             c.lastMetrics.DailyPnL,
		TotalPnL:             c.lastMetrics.TotalPnL,
		Timestamp:            time.Now(),
	}
	if s.RiskLevel == "" {
		s.RiskLevel = string(risk.RiskLevelLow)
	}
	if c.session != nil {
		s.SessionID = c.session.SessionID
		start := c.session.StartTime
		s.SessionStart = &start
	}
	return s
}

// OpenPositions returns copies of the tracked positions.
func (c *Coordinator) OpenPositions() []risk.Position {
	return c.riskMgr.Positions()
}

// RiskManager exposes the risk manager for read-only reporting surfaces.
func (c *Coordinator) RiskManager() *risk.Manager {
	return c.riskMgr
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
