package strategy

import (
	"context"
	"time"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// Action represents the type of trading action
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Signal is a trading recommendation for one symbol. Strength is in [0, 1];
// the engine drops entry signals below its configured floor.
type Signal struct {
	Symbol    string
	Action    Action
	Strength  float64
	Reason    string
	Timestamp time.Time
}

// Provider analyzes market data and produces signals. Implementations must
// be safe for concurrent use; the engine analyzes symbols in parallel.
type Provider interface {
	// Analyze produces a signal for the symbol from its kline history.
	// A nil signal with nil error means hold.
	Analyze(ctx context.Context, symbol string, klines []types.OHLCV) (*Signal, error)

	// RequiredPeriods returns the minimum number of klines Analyze needs.
	RequiredPeriods() int

	// GetName returns the name of the strategy
	GetName() string
}
