package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS trading_sessions (
	session_id      TEXT PRIMARY KEY,
	strategy_name   TEXT NOT NULL,
	start_time      TIMESTAMPTZ NOT NULL,
	end_time        TIMESTAMPTZ,
	initial_balance DOUBLE PRECISION NOT NULL,
	current_balance DOUBLE PRECISION NOT NULL,
	total_pnl       DOUBLE PRECISION NOT NULL,
	trade_count     INTEGER NOT NULL,
	status          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id         BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	quantity   DOUBLE PRECISION NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	fee        DOUBLE PRECISION NOT NULL,
	order_id   TEXT NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	balance     DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	trade_count INTEGER NOT NULL,
	taken_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_session ON trades (session_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON session_snapshots (session_id);
`

// PostgresRecorder persists sessions, trades and snapshots to PostgreSQL.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder opens the database, verifies connectivity and applies
// the schema.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresRecorder{db: db}, nil
}

// NewPostgresRecorderWithDB wraps an existing connection, used by tests.
func NewPostgresRecorderWithDB(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) SaveSession(ctx context.Context, s *TradingSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trading_sessions
			(session_id, strategy_name, start_time, end_time, initial_balance, current_balance, total_pnl, trade_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			current_balance = EXCLUDED.current_balance,
			total_pnl = EXCLUDED.total_pnl,
			trade_count = EXCLUDED.trade_count,
			status = EXCLUDED.status`,
		s.SessionID, s.StrategyName, s.StartTime, s.EndTime,
		s.InitialBalance, s.CurrentBalance, s.TotalPnL, s.TradeCount, string(s.Status))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *PostgresRecorder) SaveTrade(ctx context.Context, t *TradeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trades (session_id, symbol, side, quantity, price, fee, order_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.SessionID, t.Symbol, t.Side, t.Quantity, t.Price, t.Fee, t.OrderID, t.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save trade %s %s: %w", t.Side, t.Symbol, err)
	}
	return nil
}

func (r *PostgresRecorder) SaveSnapshot(ctx context.Context, s *SessionSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_snapshots (session_id, balance, pnl, trade_count, taken_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.SessionID, s.Balance, s.PnL, s.TradeCount, s.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", s.SessionID, err)
	}
	return nil
}

// SessionTrades loads the trade ledger for one session, oldest first.
func (r *PostgresRecorder) SessionTrades(ctx context.Context, sessionID string) ([]TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, symbol, side, quantity, price, fee, order_id, executed_at
		FROM trades WHERE session_id = $1 ORDER BY executed_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.SessionID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Fee, &t.OrderID, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
