package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Limits echoes the configured risk limits into reports.
type Limits struct {
	MaxDailyLossPct float64
	MaxDrawdownPct  float64
	MaxPositions    int
	PositionSizePct float64
}

// Report is a read-only snapshot of metrics, live positions and
// recommendations. Generating it has no side effects on the position map.
type Report struct {
	Timestamp       time.Time
	Metrics         RiskMetrics
	Positions       []Position
	Limits          Limits
	DailyTrades     int
	Recommendations []string
}

// GetRiskReport assembles a report from a fresh metrics snapshot.
func (m *Manager) GetRiskReport(ctx context.Context) (*Report, error) {
	metrics, err := m.GetCurrentMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build risk report: %w", err)
	}
	return m.BuildReport(metrics), nil
}

// BuildReport assembles a report from an existing metrics snapshot without
// touching the exchange. The engine uses it to render the per-cycle snapshot.
func (m *Manager) BuildReport(metrics *RiskMetrics) *Report {
	return &Report{
		Timestamp: m.now(),
		Metrics:   *metrics,
		Positions: m.Positions(),
		Limits: Limits{
			MaxDailyLossPct: m.cfg.MaxDailyLossPct,
			MaxDrawdownPct:  m.cfg.MaxDrawdownPct,
			MaxPositions:    m.cfg.MaxPositions,
			PositionSizePct: m.cfg.PositionSizePct,
		},
		DailyTrades:     m.DailyTradeCount(),
		Recommendations: m.recommendations(metrics),
	}
}

// recommendations is a pure function of the metrics snapshot.
func (m *Manager) recommendations(metrics *RiskMetrics) []string {
	var recs []string

	switch metrics.RiskLevel {
	case RiskLevelCritical:
		recs = append(recs,
			"CRITICAL: consider halting all trading immediately",
			"Review and reduce position sizes",
			"Check for system errors or unusual market conditions")
	case RiskLevelHigh:
		recs = append(recs,
			"HIGH RISK: reduce position sizes",
			"Consider closing losing positions",
			"Avoid opening new positions until risk decreases")
	case RiskLevelMedium:
		recs = append(recs,
			"MEDIUM RISK: monitor positions closely",
			"Consider tighter stop losses",
			"Be selective with new positions")
	}

	if metrics.PositionCount >= int(float64(m.cfg.MaxPositions)*0.8) && metrics.PositionCount > 0 {
		recs = append(recs, "Approaching maximum position limit")
	}

	if metrics.DailyPnL < 0 {
		m.mu.Lock()
		baseline := m.dailyStartBalance
		m.mu.Unlock()
		if baseline > 0 {
			recs = append(recs, fmt.Sprintf("Daily loss: %.2f%%", -metrics.DailyPnL/baseline*100))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "Risk levels are within acceptable limits")
	}
	return recs
}

// String renders the report as console tables for operator inspection.
func (r *Report) String() string {
	var sb strings.Builder

	mt := table.NewWriter()
	mt.SetStyle(table.StyleLight)
	mt.SetTitle("Risk Report %s", r.Timestamp.Format("2006-01-02 15:04:05"))
	mt.AppendRows([]table.Row{
		{"Risk Level", string(r.Metrics.RiskLevel)},
		{"Total Balance", fmt.Sprintf("%.2f", r.Metrics.TotalBalance)},
		{"Available Balance", fmt.Sprintf("%.2f", r.Metrics.AvailableBalance)},
		{"Positions Value", fmt.Sprintf("%.2f", r.Metrics.PositionsValue)},
		{"Daily P&L", fmt.Sprintf("%+.2f", r.Metrics.DailyPnL)},
		{"Total P&L", fmt.Sprintf("%+.2f", r.Metrics.TotalPnL)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", r.Metrics.MaxDrawdown*100)},
		{"Open Positions", fmt.Sprintf("%d / %d", r.Metrics.PositionCount, r.Limits.MaxPositions)},
		{"Trades Today", fmt.Sprintf("%d", r.DailyTrades)},
	})
	sb.WriteString(mt.Render())
	sb.WriteString("\n")

	if len(r.Positions) > 0 {
		pt := table.NewWriter()
		pt.SetStyle(table.StyleLight)
		pt.AppendHeader(table.Row{"Symbol", "Side", "Quantity", "Entry", "Current", "Stop", "Target", "Unrealized"})
		pt.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Unrealized", Align: text.AlignRight},
		})
		for _, pos := range r.Positions {
			pt.AppendRow(table.Row{
				pos.Symbol,
				string(pos.Side),
				fmt.Sprintf("%.8f", pos.Quantity),
				fmt.Sprintf("%.4f", pos.EntryPrice),
				fmt.Sprintf("%.4f", pos.CurrentPrice),
				fmt.Sprintf("%.4f", pos.StopLoss),
				fmt.Sprintf("%.4f", pos.TakeProfit),
				fmt.Sprintf("%+.2f", pos.UnrealizedPnL),
			})
		}
		sb.WriteString(pt.Render())
		sb.WriteString("\n")
	}

	for _, rec := range r.Recommendations {
		sb.WriteString("  - " + rec + "\n")
	}

	return sb.String()
}
