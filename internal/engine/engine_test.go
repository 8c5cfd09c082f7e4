package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
	"github.com/evanz1215/binance-trading-bot/internal/recorder"
	"github.com/evanz1215/binance-trading-bot/internal/risk"
	"github.com/evanz1215/binance-trading-bot/internal/strategy"
	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// scriptedProvider emits a fixed signal per symbol and holds everywhere else.
type scriptedProvider struct {
	signals map[string]*strategy.Signal
}

func (p *scriptedProvider) Analyze(ctx context.Context, symbol string, klines []types.OHLCV) (*strategy.Signal, error) {
	if sig, ok := p.signals[symbol]; ok {
		return sig, nil
	}
	return nil, nil
}

func (p *scriptedProvider) RequiredPeriods() int { return 5 }
func (p *scriptedProvider) GetName() string      { return "scripted" }

func buySignal(symbol string, strength float64) *strategy.Signal {
	return &strategy.Signal{
		Symbol:    symbol,
		Action:    strategy.ActionBuy,
		Strength:  strength,
		Reason:    "scripted buy",
		Timestamp: time.Now(),
	}
}

func sellSignal(symbol string) *strategy.Signal {
	return &strategy.Signal{
		Symbol:    symbol,
		Action:    strategy.ActionSell,
		Strength:  1.0,
		Reason:    "scripted sell",
		Timestamp: time.Now(),
	}
}

func engineTestConfig(whitelist ...string) *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			BaseCurrency:      "USDT",
			StrategyName:      "scripted",
			Interval:          "1h",
			CycleInterval:     50 * time.Millisecond,
			MaxPositions:      3,
			PositionSizePct:   0.02,
			StopLossPct:       0.05,
			TakeProfitPct:     0.10,
			MaxDailyLossPct:   0.10,
			MaxDrawdownPct:    0.15,
			MinSignalStrength: 0.5,
			Whitelist:         whitelist,
			DiscoveryInterval: time.Hour,
			CloseOnStop:       true,
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, provider strategy.Provider) (*Coordinator, *exchange.SimClient, *recorder.MemoryRecorder) {
	t.Helper()

	sim := exchange.NewSimClient("USDT", 10_000, 42)
	rec := recorder.NewMemoryRecorder()
	riskMgr := risk.NewManager(sim, &cfg.Trading, nil)

	c := NewCoordinator(cfg, sim, provider, riskMgr, rec, nil, nil, nil)
	return c, sim, rec
}

func TestCoordinatorLifecycle(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	c, _, _ := newTestEngine(t, cfg, &scriptedProvider{})

	assert.Equal(t, StateStopped, c.State())

	err := c.Stop(context.Background())
	assert.Error(t, err, "stopping a stopped engine must fail")

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())

	err = c.Start(context.Background())
	assert.Error(t, err, "starting a running engine must fail")

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, StateStopped, c.State())

	status := c.GetStatus()
	assert.False(t, status.IsRunning)
	assert.NotEmpty(t, status.SessionID)
}

func TestCoordinatorStartFailureLeavesStopped(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	cfg.Trading.Whitelist = nil
	cfg.Trading.MinVolume24h = 1e12 // no symbol passes the volume floor

	c, _, _ := newTestEngine(t, cfg, &scriptedProvider{})

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, c.State())
}

func TestCycleOpensPositionOnce(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, _, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))

	c.runCycle(ctx)
	require.True(t, c.riskMgr.HasPosition("BTCUSDT"))
	require.Len(t, rec.Trades(), 1)
	assert.Equal(t, "BUY", rec.Trades()[0].Side)

	// Same signal again must not stack a second position.
	c.runCycle(ctx)
	assert.Equal(t, 1, c.riskMgr.PositionCount())
	assert.Len(t, rec.Trades(), 1)
}

func TestCycleRespectsPositionCap(t *testing.T) {
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	cfg := engineTestConfig(symbols...)

	provider := &scriptedProvider{signals: map[string]*strategy.Signal{}}
	for _, s := range symbols {
		provider.signals[s] = buySignal(s, 0.8)
	}
	c, _, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)

	assert.Equal(t, 3, c.riskMgr.PositionCount(), "the fourth entry must be denied by the cap")
	assert.Len(t, rec.Trades(), 3)
}

func TestWeakSignalIgnored(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.3),
	}}
	c, _, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)

	assert.Equal(t, 0, c.riskMgr.PositionCount())
	assert.Empty(t, rec.Trades())
}

func TestRejectedOrderLeavesNoPosition(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, sim, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	sim.RejectNextOrder("BTCUSDT")
	c.runCycle(ctx)

	assert.False(t, c.riskMgr.HasPosition("BTCUSDT"))
	assert.Empty(t, rec.Trades())
}

func TestCriticalRiskHaltsEntries(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.9),
	}}
	c, sim, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))

	// An 11% intraday loss against a 10% cap pins the risk level at CRITICAL.
	sim.SetBalance("USDT", 8_900)
	c.runCycle(ctx)

	assert.Equal(t, 0, c.riskMgr.PositionCount())
	assert.Empty(t, rec.Trades())
	assert.Equal(t, string(risk.RiskLevelCritical), c.GetStatus().RiskLevel)
}

func TestSellSignalClosesPosition(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, _, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)
	require.True(t, c.riskMgr.HasPosition("BTCUSDT"))

	provider.signals["BTCUSDT"] = sellSignal("BTCUSDT")
	c.runCycle(ctx)

	assert.False(t, c.riskMgr.HasPosition("BTCUSDT"))
	require.Len(t, rec.Trades(), 2)
	assert.Equal(t, "SELL", rec.Trades()[1].Side)
}

func TestStopLossExitSynthesized(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, sim, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)

	pos, ok := c.riskMgr.GetPosition("BTCUSDT")
	require.True(t, ok)

	// Drop the price well through the stop; the random walk in the ticker
	// moves at most 0.1% per read and cannot climb back above it.
	sim.SetPrice("BTCUSDT", pos.EntryPrice*0.90)
	delete(provider.signals, "BTCUSDT")
	c.runCycle(ctx)

	assert.False(t, c.riskMgr.HasPosition("BTCUSDT"), "stop loss must close the position without a strategy signal")
	require.Len(t, rec.Trades(), 2)
	assert.Equal(t, "SELL", rec.Trades()[1].Side)
}

func TestTakeProfitExitSynthesized(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, sim, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)

	pos, ok := c.riskMgr.GetPosition("BTCUSDT")
	require.True(t, ok)

	sim.SetPrice("BTCUSDT", pos.EntryPrice*1.15)
	delete(provider.signals, "BTCUSDT")
	c.runCycle(ctx)

	assert.False(t, c.riskMgr.HasPosition("BTCUSDT"))
	require.Len(t, rec.Trades(), 2)
}

func TestCloseAllPositionsContinuesPastFailure(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT", "ETHUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
		"ETHUSDT": buySignal("ETHUSDT", 0.8),
	}}
	c, sim, _ := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)
	require.Equal(t, 2, c.riskMgr.PositionCount())

	sim.FailNextOrder("BTCUSDT", fmt.Errorf("exchange refused the order"))
	c.closeAllPositions(ctx)

	assert.Equal(t, 1, c.riskMgr.PositionCount(), "one failed close must not abort the others")
	assert.True(t, c.riskMgr.HasPosition("BTCUSDT"))
	assert.False(t, c.riskMgr.HasPosition("ETHUSDT"))
}

func TestStopFinalizesSession(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	c, _, rec := newTestEngine(t, cfg, &scriptedProvider{})

	require.NoError(t, c.Start(context.Background()))
	sessionID := c.GetStatus().SessionID
	require.NoError(t, c.Stop(context.Background()))

	session, ok := rec.Session(sessionID)
	require.True(t, ok)
	assert.Equal(t, recorder.SessionStatusStopped, session.Status)
	require.NotNil(t, session.EndTime)
}

func TestSessionTradeCountTracksTradeLedger(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, _, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)
	provider.signals["BTCUSDT"] = sellSignal("BTCUSDT")
	c.runCycle(ctx)

	require.Len(t, rec.Trades(), 2)
	session, ok := rec.Session(c.GetStatus().SessionID)
	require.True(t, ok)
	// The session counter follows the trade ledger, not the risk manager's
	// daily accounting, so it survives the midnight baseline roll.
	assert.Equal(t, 2, session.TradeCount)

	snaps := rec.Snapshots()
	require.NotEmpty(t, snaps)
	assert.Equal(t, 2, snaps[len(snaps)-1].TradeCount)
}

func TestStopWritesSessionWorkbook(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	cfg.Trading.ReportDir = t.TempDir()
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, _, rec := newTestEngine(t, cfg, provider)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(rec.Trades()) > 0 },
		2*time.Second, 10*time.Millisecond, "first cycle should open a position")
	sessionID := c.GetStatus().SessionID
	require.NoError(t, c.Stop(context.Background()))

	assert.FileExists(t, filepath.Join(cfg.Trading.ReportDir, fmt.Sprintf("session_%s.xlsx", sessionID)))
}

func TestStopWithoutTradesWritesNoWorkbook(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	cfg.Trading.ReportDir = t.TempDir()
	c, _, _ := newTestEngine(t, cfg, &scriptedProvider{})

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))

	entries, err := os.ReadDir(cfg.Trading.ReportDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistSessionStateWritesSnapshot(t *testing.T) {
	cfg := engineTestConfig("BTCUSDT")
	provider := &scriptedProvider{signals: map[string]*strategy.Signal{
		"BTCUSDT": buySignal("BTCUSDT", 0.8),
	}}
	c, _, rec := newTestEngine(t, cfg, provider)
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))
	c.runCycle(ctx)

	require.NotEmpty(t, rec.Snapshots())
	snap := rec.Snapshots()[len(rec.Snapshots())-1]
	assert.Equal(t, c.GetStatus().SessionID, snap.SessionID)
	assert.Equal(t, 1, snap.TradeCount)
}
