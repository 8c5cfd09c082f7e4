package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRecorder_SaveSessionUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := NewPostgresRecorderWithDB(db)
	session := &TradingSession{
		SessionID:      "sess-1",
		StrategyName:   "ma_cross",
		StartTime:      time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		InitialBalance: 10_000,
		CurrentBalance: 10_250,
		TotalPnL:       250,
		TradeCount:     4,
		Status:         SessionStatusActive,
	}

	mock.ExpectExec("INSERT INTO trading_sessions").
		WithArgs(session.SessionID, session.StrategyName, session.StartTime, nil,
			session.InitialBalance, session.CurrentBalance, session.TotalPnL,
			session.TradeCount, "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, rec.SaveSession(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_SaveTrade(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := NewPostgresRecorderWithDB(db)
	trade := &TradeRecord{
		SessionID: "sess-1",
		Symbol:    "BTCUSDT",
		Side:      "BUY",
		Quantity:  0.01,
		Price:     50_000,
		Fee:       0.5,
		OrderID:   "ord-1",
		Timestamp: time.Date(2026, 8, 30, 10, 5, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO trades").
		WithArgs(trade.SessionID, trade.Symbol, trade.Side, trade.Quantity,
			trade.Price, trade.Fee, trade.OrderID, trade.Timestamp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, rec.SaveTrade(context.Background(), trade))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_SaveTradePropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := NewPostgresRecorderWithDB(db)

	mock.ExpectExec("INSERT INTO trades").
		WillReturnError(assert.AnError)

	err = rec.SaveTrade(context.Background(), &TradeRecord{Symbol: "BTCUSDT", Side: "BUY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save trade")
}

func TestPostgresRecorder_SessionTrades(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := NewPostgresRecorderWithDB(db)
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"session_id", "symbol", "side", "quantity", "price", "fee", "order_id", "executed_at",
	}).
		AddRow("sess-1", "BTCUSDT", "BUY", 0.01, 50_000.0, 0.5, "ord-1", now).
		AddRow("sess-1", "BTCUSDT", "SELL", 0.01, 52_000.0, 0.52, "ord-2", now.Add(time.Hour))

	mock.ExpectQuery("SELECT session_id, symbol, side").
		WithArgs("sess-1").
		WillReturnRows(rows)

	trades, err := rec.SessionTrades(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, "SELL", trades[1].Side)
	assert.NoError(t, mock.ExpectationsWereMet())
}
