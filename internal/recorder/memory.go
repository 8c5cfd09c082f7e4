package recorder

import (
	"context"
	"sync"
)

// MemoryRecorder keeps records in memory. It backs paper and sim runs where
// no database is configured, and doubles as the test recorder.
type MemoryRecorder struct {
	mu        sync.Mutex
	sessions  map[string]TradingSession
	trades    []TradeRecord
	snapshots []SessionSnapshot
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		sessions: make(map[string]TradingSession),
	}
}

func (r *MemoryRecorder) SaveSession(ctx context.Context, session *TradingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.SessionID] = *session
	return nil
}

func (r *MemoryRecorder) SaveTrade(ctx context.Context, trade *TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, *trade)
	return nil
}

func (r *MemoryRecorder) SaveSnapshot(ctx context.Context, snapshot *SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *snapshot)
	return nil
}

// SessionTrades returns the trades recorded for one session, in order.
func (r *MemoryRecorder) SessionTrades(ctx context.Context, sessionID string) ([]TradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TradeRecord
	for _, t := range r.trades {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRecorder) Close() error {
	return nil
}

// Trades returns a copy of all recorded trades.
func (r *MemoryRecorder) Trades() []TradeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TradeRecord, len(r.trades))
	copy(out, r.trades)
	return out
}

// Snapshots returns a copy of all recorded snapshots.
func (r *MemoryRecorder) Snapshots() []SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionSnapshot, len(r.snapshots))
	copy(out, r.snapshots)
	return out
}

// Session returns the last saved state of a session.
func (r *MemoryRecorder) Session(sessionID string) (TradingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}
