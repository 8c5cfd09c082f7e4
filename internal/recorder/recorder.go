package recorder

import (
	"context"
	"time"
)

// SessionStatus is the lifecycle state of a trading session.
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusStopped SessionStatus = "STOPPED"
)

// TradingSession is one continuous run of the engine with its own P&L
// baseline. Created at start, updated every cycle, closed at stop.
type TradingSession struct {
	SessionID      string
	StrategyName   string
	StartTime      time.Time
	EndTime        *time.Time
	InitialBalance float64
	CurrentBalance float64
	TotalPnL       float64
	TradeCount     int
	Status         SessionStatus
}

// TradeRecord is the ledger entry for one filled order.
type TradeRecord struct {
	SessionID string
	Symbol    string
	Side      string
	Quantity  float64
	Price     float64
	Fee       float64
	OrderID   string
	Timestamp time.Time
}

// SessionSnapshot is the per-cycle record of session health.
type SessionSnapshot struct {
	SessionID  string
	Balance    float64
	PnL        float64
	TradeCount int
	Timestamp  time.Time
}

// Recorder persists trades and session state. The engine only emits records
// during trading; SessionTrades exists for end-of-session reporting, never
// for decisions.
type Recorder interface {
	SaveSession(ctx context.Context, session *TradingSession) error
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	SaveSnapshot(ctx context.Context, snapshot *SessionSnapshot) error
	SessionTrades(ctx context.Context, sessionID string) ([]TradeRecord, error)
	Close() error
}
