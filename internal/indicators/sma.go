package indicators

import (
	"errors"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// SMA represents the Simple Moving Average technical indicator
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

// Calculate calculates the SMA over the trailing window of data.
func (s *SMA) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < s.period {
		return 0, errors.New("insufficient data for SMA calculation")
	}

	sum := 0.0
	for i := len(data) - s.period; i < len(data); i++ {
		sum += data[i].Close
	}

	return sum / float64(s.period), nil
}

// CalculateAt calculates the SMA for the window ending at index end
// (exclusive). Used to compare the current value against the previous bar.
func (s *SMA) CalculateAt(data []types.OHLCV, end int) (float64, error) {
	if end < s.period || end > len(data) {
		return 0, errors.New("insufficient data for SMA calculation")
	}

	sum := 0.0
	for i := end - s.period; i < end; i++ {
		sum += data[i].Close
	}

	return sum / float64(s.period), nil
}

// GetRequiredPeriods returns the minimum number of periods needed
func (s *SMA) GetRequiredPeriods() int {
	return s.period
}
