package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder_RoundTrip(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	session := &TradingSession{
		SessionID:      "sess-1",
		Status:         SessionStatusActive,
		InitialBalance: 10_000,
	}
	require.NoError(t, rec.SaveSession(ctx, session))

	session.CurrentBalance = 10_100
	session.Status = SessionStatusStopped
	require.NoError(t, rec.SaveSession(ctx, session))

	stored, ok := rec.Session("sess-1")
	require.True(t, ok)
	assert.Equal(t, SessionStatusStopped, stored.Status)
	assert.InDelta(t, 10_100, stored.CurrentBalance, 1e-9)

	require.NoError(t, rec.SaveTrade(ctx, &TradeRecord{SessionID: "sess-1", Symbol: "BTCUSDT", Side: "BUY"}))
	require.NoError(t, rec.SaveSnapshot(ctx, &SessionSnapshot{SessionID: "sess-1", Balance: 10_050}))

	assert.Len(t, rec.Trades(), 1)
	assert.Len(t, rec.Snapshots(), 1)
}

func TestMemoryRecorder_SessionTrades(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	require.NoError(t, rec.SaveTrade(ctx, &TradeRecord{SessionID: "sess-1", Symbol: "BTCUSDT", Side: "BUY"}))
	require.NoError(t, rec.SaveTrade(ctx, &TradeRecord{SessionID: "sess-2", Symbol: "ETHUSDT", Side: "BUY"}))
	require.NoError(t, rec.SaveTrade(ctx, &TradeRecord{SessionID: "sess-1", Symbol: "BTCUSDT", Side: "SELL"}))

	trades, err := rec.SessionTrades(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, "SELL", trades[1].Side)

	none, err := rec.SessionTrades(ctx, "sess-9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExportSessionXLSX(t *testing.T) {
	end := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)
	session := &TradingSession{
		SessionID:      "sess-1",
		StrategyName:   "ma_cross",
		StartTime:      end.Add(-8 * time.Hour),
		EndTime:        &end,
		InitialBalance: 10_000,
		CurrentBalance: 10_300,
		TotalPnL:       300,
		TradeCount:     2,
		Status:         SessionStatusStopped,
	}
	trades := []TradeRecord{
		{SessionID: "sess-1", Symbol: "BTCUSDT", Side: "BUY", Quantity: 0.01, Price: 50_000, Fee: 0.5, OrderID: "a", Timestamp: end.Add(-7 * time.Hour)},
		{SessionID: "sess-1", Symbol: "BTCUSDT", Side: "SELL", Quantity: 0.01, Price: 53_000, Fee: 0.53, OrderID: "b", Timestamp: end.Add(-time.Hour)},
	}

	path := filepath.Join(t.TempDir(), "session.xlsx")
	require.NoError(t, ExportSessionXLSX(path, session, trades))
	assert.FileExists(t, path)
}
