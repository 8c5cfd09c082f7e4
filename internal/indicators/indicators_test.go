package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

func klinesFromCloses(closes ...float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	for i, c := range closes {
		out[i] = types.OHLCV{Close: c}
	}
	return out
}

func TestSMACalculate(t *testing.T) {
	sma := NewSMA(3)

	v, err := sma.Calculate(klinesFromCloses(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9, "trailing window is (3+4+5)/3")

	_, err = sma.Calculate(klinesFromCloses(1, 2))
	assert.Error(t, err)
}

func TestSMACalculateAt(t *testing.T) {
	sma := NewSMA(3)
	data := klinesFromCloses(1, 2, 3, 4, 5)

	v, err := sma.CalculateAt(data, 4)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9, "window ending before the last bar is (2+3+4)/3")

	full, err := sma.CalculateAt(data, len(data))
	require.NoError(t, err)
	trailing, err := sma.Calculate(data)
	require.NoError(t, err)
	assert.Equal(t, trailing, full)

	_, err = sma.CalculateAt(data, 2)
	assert.Error(t, err)
	_, err = sma.CalculateAt(data, len(data)+1)
	assert.Error(t, err)
}

func TestRSICalculate(t *testing.T) {
	rsi := NewRSI(14)

	// Monotonic rise has no losses, which pins RSI at 100.
	up := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	v, err := rsi.Calculate(klinesFromCloses(up...))
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	// Monotonic fall has no gains, which pins RSI at 0.
	down := make([]float64, 20)
	for i := range down {
		down[i] = 100 - float64(i)
	}
	v, err = rsi.Calculate(klinesFromCloses(down...))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-9)

	// Equal gains and losses balance at 50.
	alternating := make([]float64, 21)
	for i := range alternating {
		if i%2 == 0 {
			alternating[i] = 100
		} else {
			alternating[i] = 101
		}
	}
	v, err = rsi.Calculate(klinesFromCloses(alternating...))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestRSIInsufficientData(t *testing.T) {
	rsi := NewRSI(14)
	_, err := rsi.Calculate(klinesFromCloses(1, 2, 3))
	assert.Error(t, err)
	assert.Equal(t, 15, rsi.GetRequiredPeriods())
}
