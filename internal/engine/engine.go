package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
	"github.com/evanz1215/binance-trading-bot/internal/logger"
	"github.com/evanz1215/binance-trading-bot/internal/monitoring"
	"github.com/evanz1215/binance-trading-bot/internal/notifications"
	"github.com/evanz1215/binance-trading-bot/internal/recorder"
	"github.com/evanz1215/binance-trading-bot/internal/risk"
	"github.com/evanz1215/binance-trading-bot/internal/strategy"
	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

// State is the engine lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// Lifecycle errors. Callers can tell a state conflict apart from a genuine
// startup failure.
var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotRunning     = errors.New("engine not running")
)

// ioTimeout bounds every exchange call made from the cycle.
const ioTimeout = 10 * time.Second

// cycleTimeout bounds one full cycle so a wedged exchange cannot stall the
// loop past its cadence forever.
const cycleTimeout = 45 * time.Second

// Coordinator drives the trading cycle. It is the only component that places
// orders, and the only writer of the session record. All dependencies are
// injected; nothing is reached through globals.
type Coordinator struct {
	cfg      *config.Config
	client   exchange.Client
	provider strategy.Provider
	riskMgr  *risk.Manager
	rec      recorder.Recorder
	notifier notifications.Notifier
	health   *monitoring.HealthChecker
	filter   *SymbolFilter
	log      *logger.Logger

	mu            sync.Mutex
	state         State
	session       *recorder.TradingSession
	symbols       []string
	lastMetrics   risk.RiskMetrics
	lastRiskLevel risk.RiskLevel
	tradeCount    int // cumulative for the session, unlike the risk manager's daily counter

	stopChan chan struct{}
	done     chan struct{}
}

// NewCoordinator wires the engine together. Notifier and health may be nil.
func NewCoordinator(
	cfg *config.Config,
	client exchange.Client,
	provider strategy.Provider,
	riskMgr *risk.Manager,
	rec recorder.Recorder,
	notifier notifications.Notifier,
	health *monitoring.HealthChecker,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		client:   client,
		provider: provider,
		riskMgr:  riskMgr,
		rec:      rec,
		notifier: notifier,
		health:   health,
		filter:   NewSymbolFilter(client, &cfg.Trading, log),
		log:      log,
		state:    StateStopped,
	}
}

// Start initializes the session and launches the cycle goroutine. A failure
// during initialization leaves the engine STOPPED with nothing partially
// started. Calling Start on a running engine is rejected.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		state := c.state
		c.mu.Unlock()
		c.logf("Start rejected: engine is %s", state)
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateRunning
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run()

	c.logf("Engine started: session %s, strategy %s, %d symbols",
		c.session.SessionID, c.provider.GetName(), len(c.symbols))
	c.notify(notifications.LevelSuccess, fmt.Sprintf(
		"Engine started\nSession: %s\nStrategy: %s\nBalance: %.2f %s",
		c.session.SessionID, c.provider.GetName(),
		c.session.InitialBalance, c.cfg.Trading.BaseCurrency))
	return nil
}

func (c *Coordinator) initialize(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := c.client.Connect(connectCtx); err != nil {
		return fmt.Errorf("exchange unreachable at startup: %w", err)
	}
	if c.health != nil {
		c.health.SetConnected(true)
	}

	if err := c.riskMgr.InitializeSession(ctx); err != nil {
		return err
	}

	metrics, err := c.riskMgr.GetCurrentMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to read starting balance: %w", err)
	}

	symbols, err := c.filter.Symbols(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("symbol discovery produced an empty monitored set")
	}

	session := &recorder.TradingSession{
		SessionID:      uuid.NewString(),
		StrategyName:   c.provider.GetName(),
		StartTime:      time.Now(),
		InitialBalance: metrics.TotalBalance,
		CurrentBalance: metrics.TotalBalance,
		Status:         recorder.SessionStatusActive,
	}
	if err := c.rec.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to persist new session: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.symbols = symbols
	c.lastMetrics = *metrics
	c.lastRiskLevel = ""
	c.tradeCount = 0
	c.mu.Unlock()
	return nil
}

// Stop ends the loop, waits for it to quiesce, then liquidates open
// positions best-effort and closes the session.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotRunning, state)
	}
	c.state = StateStopping
	close(c.stopChan)
	done := c.done
	c.mu.Unlock()

	c.logf("Stop requested, waiting for cycle to finish")
	<-done

	if c.cfg.Trading.CloseOnStop {
		c.closeAllPositions(ctx)
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		now := time.Now()
		session.EndTime = &now
		session.Status = recorder.SessionStatusStopped
		c.mu.Lock()
		session.TradeCount = c.tradeCount
		c.mu.Unlock()
		saveCtx, cancel := context.WithTimeout(ctx, ioTimeout)
		if err := c.rec.SaveSession(saveCtx, session); err != nil {
			c.logError("finalize session", err)
		}
		cancel()

		c.exportSessionReport(ctx, session)
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.logf("Engine stopped")
	c.notify(notifications.LevelInfo, "Engine stopped")
	return nil
}

// run is the cycle loop. Cadence is wall-clock with drift correction; a slow
// cycle shortens the following sleep instead of shifting the schedule.
func (c *Coordinator) run() {
	defer close(c.done)

	for {
		start := time.Now()

		cycleCtx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
		stopWatch := make(chan struct{})
		go func() {
			select {
			case <-c.stopChan:
				cancel()
			case <-stopWatch:
			}
		}()

		c.runCycle(cycleCtx)

		cancel()
		close(stopWatch)

		elapsed := time.Since(start)
		monitoring.ObserveCycle(elapsed.Seconds())

		sleep := c.cfg.Trading.CycleInterval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-c.stopChan:
			return
		case <-time.After(sleep):
		}
	}
}

// runCycle executes one pass: snapshot risk, analyze symbols in parallel,
// execute approved signals sequentially, maintain open positions, persist
// session stats. A failure for one symbol never aborts the others.
func (c *Coordinator) runCycle(ctx context.Context) {
	symbols, err := c.filter.Symbols(ctx)
	if err != nil {
		c.logError("symbol discovery", err)
		symbols = c.monitoredSymbols()
	}
	c.mu.Lock()
	c.symbols = symbols
	c.mu.Unlock()

	// One metrics snapshot per cycle keeps admission decisions consistent
	// across every signal evaluated below.
	metrics, err := c.riskMgr.GetCurrentMetrics(ctx)
	if err != nil {
		c.logError("risk metrics", err)
		if c.health != nil {
			c.health.RecordError(err.Error())
		}
		monitoring.RecordError("metrics")
		return
	}
	c.mu.Lock()
	c.lastMetrics = *metrics
	c.mu.Unlock()
	monitoring.UpdateRiskState(metrics.PositionCount, riskLevelOrdinal(metrics.RiskLevel), metrics.DailyPnL)
	c.logRiskTransition(metrics)

	signals := c.analyzeSymbols(ctx, symbols)

	// Execution converges to a single sequential point so admission checks
	// see a consistent view of exposure.
	executed := 0
	for _, sig := range signals {
		if ctx.Err() != nil {
			c.logf("Cycle interrupted, %d signals unprocessed", len(signals)-executed)
			break
		}
		c.executeSignal(ctx, metrics, sig)
		executed++
	}

	c.maintainPositions(ctx)
	c.persistSessionState(ctx, metrics)

	if c.health != nil {
		c.health.RecordCycle()
	}
	if c.log != nil {
		c.log.LogCycleSummary(len(symbols), len(signals), c.riskMgr.PositionCount(),
			metrics.TotalBalance, metrics.DailyPnL, string(metrics.RiskLevel))
	}
}

// analyzeSymbols fans symbol analysis out in parallel and collects non-HOLD
// signals. Order of results follows the symbol list, keeping execution order
// deterministic.
func (c *Coordinator) analyzeSymbols(ctx context.Context, symbols []string) []*strategy.Signal {
	results := make([]*strategy.Signal, len(symbols))
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			sig, err := c.analyzeOne(ctx, symbol)
			if err != nil {
				c.logError(fmt.Sprintf("analyze %s", symbol), err)
				monitoring.RecordError("analysis")
				return
			}
			results[i] = sig
		}(i, symbol)
	}
	wg.Wait()

	signals := make([]*strategy.Signal, 0, len(results))
	for _, sig := range results {
		if sig != nil && sig.Action != strategy.ActionHold {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (c *Coordinator) analyzeOne(ctx context.Context, symbol string) (*strategy.Signal, error) {
	callCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	var klines []types.OHLCV
	err := exchange.RetryRead(callCtx, exchange.DefaultReadRetry(), func() error {
		k, err := c.client.GetKlines(callCtx, exchange.KlineParams{
			Symbol:   symbol,
			Interval: c.cfg.Trading.Interval,
			Limit:    c.provider.RequiredPeriods() + 10,
		})
		if err != nil {
			return err
		}
		klines = k
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(klines) < c.provider.RequiredPeriods() {
		c.logf("Skipping %s: %d klines, need %d", symbol, len(klines), c.provider.RequiredPeriods())
		return nil, nil
	}

	monitoring.UpdatePrice(symbol, klines[len(klines)-1].Close)
	return c.provider.Analyze(ctx, symbol, klines)
}

// executeSignal routes one signal. BUY without a position attempts an entry;
// SELL with a position attempts an exit; everything else is a no-op (no
// short-selling at this layer).
func (c *Coordinator) executeSignal(ctx context.Context, metrics *risk.RiskMetrics, sig *strategy.Signal) {
	switch sig.Action {
	case strategy.ActionBuy:
		if c.riskMgr.HasPosition(sig.Symbol) {
			return
		}
		if sig.Strength < c.cfg.Trading.MinSignalStrength {
			c.logf("Ignoring weak BUY for %s (strength %.2f < %.2f)",
				sig.Symbol, sig.Strength, c.cfg.Trading.MinSignalStrength)
			return
		}
		c.executeEntry(ctx, metrics, sig)

	case strategy.ActionSell:
		if !c.riskMgr.HasPosition(sig.Symbol) {
			return
		}
		c.executeExit(ctx, sig.Symbol, sig.Reason)
	}
}

// positionNotional sizes an entry from the nominal percentage, scaled by
// signal strength into [1x, 2x] of nominal. The risk manager's per-position
// cap sits at exactly 2x, so a maximal signal still passes admission.
func (c *Coordinator) positionNotional(totalBalance, strength float64) float64 {
	base := totalBalance * c.cfg.Trading.PositionSizePct
	return base * (1 + strength)
}

func (c *Coordinator) executeEntry(ctx context.Context, metrics *risk.RiskMetrics, sig *strategy.Signal) {
	notional := c.positionNotional(metrics.TotalBalance, sig.Strength)

	ok, denial := c.riskMgr.CanOpenPosition(metrics, sig.Symbol, exchange.OrderSideBuy, notional)
	if !ok {
		c.logf("Entry denied for %s: %s", sig.Symbol, denial.Reason)
		monitoring.RecordRejectedEntry(denial.Category)
		return
	}

	tickerCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	ticker, err := c.client.GetTicker(tickerCtx, sig.Symbol)
	cancel()
	if err != nil {
		c.logError(fmt.Sprintf("price entry %s", sig.Symbol), err)
		return
	}
	quantity := notional / ticker.LastPrice

	// Order placement is never retried; a failure defers to the next cycle.
	orderCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	order, err := c.client.PlaceOrder(orderCtx, exchange.OrderParams{
		Symbol:   sig.Symbol,
		Side:     exchange.OrderSideBuy,
		Type:     exchange.OrderTypeMarket,
		Quantity: quantity,
	})
	cancel()
	if err != nil {
		c.logError(fmt.Sprintf("place BUY %s", sig.Symbol), err)
		monitoring.RecordError("order")
		return
	}
	if !order.IsFilled() {
		c.logf("BUY %s not filled (status %s), no position recorded", sig.Symbol, order.Status)
		return
	}

	fillPrice := order.FillPrice()
	if fillPrice == 0 {
		fillPrice = ticker.LastPrice
	}
	if err := c.riskMgr.AddPosition(sig.Symbol, exchange.OrderSideBuy, order.ExecutedQty, fillPrice); err != nil {
		c.logError(fmt.Sprintf("track position %s", sig.Symbol), err)
		return
	}

	c.recordTrade(ctx, order, fillPrice)
	c.logf("Opened %s: %.8f @ %.4f (%s)", sig.Symbol, order.ExecutedQty, fillPrice, sig.Reason)
	c.notify(notifications.LevelTrade, fmt.Sprintf(
		"BUY %s\nQuantity: %.8f\nPrice: %.4f\nReason: %s",
		sig.Symbol, order.ExecutedQty, fillPrice, sig.Reason))
}

func (c *Coordinator) executeExit(ctx context.Context, symbol, reason string) {
	ok, denyReason := c.riskMgr.CanClosePosition(symbol)
	if !ok {
		c.logf("Exit skipped for %s: %s", symbol, denyReason)
		return
	}

	pos, found := c.riskMgr.GetPosition(symbol)
	if !found {
		return
	}

	orderCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	order, err := c.client.PlaceOrder(orderCtx, exchange.OrderParams{
		Symbol:   symbol,
		Side:     pos.Side.Opposite(),
		Type:     exchange.OrderTypeMarket,
		Quantity: pos.Quantity,
	})
	cancel()
	if err != nil {
		// Position stays tracked; the next cycle re-evaluates the exit.
		c.logError(fmt.Sprintf("place %s %s", pos.Side.Opposite(), symbol), err)
		monitoring.RecordError("order")
		return
	}
	if !order.IsFilled() {
		c.logf("%s %s not filled (status %s), position kept", pos.Side.Opposite(), symbol, order.Status)
		return
	}

	closed, err := c.riskMgr.RemovePosition(symbol)
	if err != nil {
		c.logError(fmt.Sprintf("untrack position %s", symbol), err)
		return
	}

	fillPrice := order.FillPrice()
	if fillPrice == 0 {
		fillPrice = closed.CurrentPrice
	}
	c.recordTrade(ctx, order, fillPrice)
	c.logf("Closed %s: %.8f @ %.4f, P&L %.2f (%s)",
		symbol, order.ExecutedQty, fillPrice, closed.UnrealizedPnL, reason)
	c.notify(notifications.LevelTrade, fmt.Sprintf(
		"%s %s\nQuantity: %.8f\nPrice: %.4f\nP&L: %+.2f\nReason: %s",
		pos.Side.Opposite(), symbol, order.ExecutedQty, fillPrice, closed.UnrealizedPnL, reason))
}

// maintainPositions re-prices every open position regardless of this cycle's
// signals and synthesizes a maximal-strength exit when a trigger fires.
func (c *Coordinator) maintainPositions(ctx context.Context) {
	for _, pos := range c.riskMgr.Positions() {
		if ctx.Err() != nil {
			return
		}

		tickerCtx, cancel := context.WithTimeout(ctx, ioTimeout)
		var price float64
		err := exchange.RetryRead(tickerCtx, exchange.DefaultReadRetry(), func() error {
			t, err := c.client.GetTicker(tickerCtx, pos.Symbol)
			if err != nil {
				return err
			}
			price = t.LastPrice
			return nil
		})
		cancel()
		if err != nil {
			c.logError(fmt.Sprintf("maintenance price %s", pos.Symbol), err)
			continue
		}

		monitoring.UpdatePrice(pos.Symbol, price)
		triggers := c.riskMgr.UpdatePositionPrices(pos.Symbol, price)

		switch {
		case triggers.StopLossTriggered:
			c.logf("Stop loss triggered for %s at %.4f (stop %.4f)", pos.Symbol, price, pos.StopLoss)
			c.executeExit(ctx, pos.Symbol, "stop loss triggered")
		case triggers.TakeProfitTriggered:
			c.logf("Take profit triggered for %s at %.4f (target %.4f)", pos.Symbol, price, pos.TakeProfit)
			c.executeExit(ctx, pos.Symbol, "take profit triggered")
		}
	}
}

// closeAllPositions is the emergency stop: every open position gets a close
// attempt, and a failure on one never aborts the rest.
func (c *Coordinator) closeAllPositions(ctx context.Context) {
	positions := c.riskMgr.Positions()
	if len(positions) == 0 {
		return
	}

	c.logf("Emergency stop: closing %d open positions", len(positions))
	for _, pos := range positions {
		closeCtx, cancel := context.WithTimeout(ctx, ioTimeout)
		c.executeExit(closeCtx, pos.Symbol, "engine stop")
		cancel()
	}

	if remaining := c.riskMgr.PositionCount(); remaining > 0 {
		c.logf("Emergency stop finished with %d positions still open", remaining)
		c.notify(notifications.LevelWarning, fmt.Sprintf(
			"Engine stopped with %d positions still open", remaining))
	}
}

func (c *Coordinator) persistSessionState(ctx context.Context, metrics *risk.RiskMetrics) {
	c.mu.Lock()
	session := c.session
	if session == nil {
		c.mu.Unlock()
		return
	}
	session.CurrentBalance = metrics.TotalBalance
	session.TotalPnL = metrics.TotalPnL
	// The session counter is cumulative; the risk manager's daily counter
	// resets at midnight and must not feed session bookkeeping.
	session.TradeCount = c.tradeCount
	snapshot := &recorder.SessionSnapshot{
		SessionID:  session.SessionID,
		Balance:    metrics.TotalBalance,
		PnL:        metrics.TotalPnL,
		TradeCount: session.TradeCount,
		Timestamp:  time.Now(),
	}
	c.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := c.rec.SaveSession(saveCtx, session); err != nil {
		c.logError("persist session", err)
	}
	if err := c.rec.SaveSnapshot(saveCtx, snapshot); err != nil {
		c.logError("persist snapshot", err)
	}
}

func (c *Coordinator) recordTrade(ctx context.Context, order *exchange.Order, fillPrice float64) {
	c.mu.Lock()
	c.tradeCount++
	sessionID := ""
	if c.session != nil {
		sessionID = c.session.SessionID
	}
	c.mu.Unlock()

	trade := &recorder.TradeRecord{
		SessionID: sessionID,
		Symbol:    order.Symbol,
		Side:      string(order.Side),
		Quantity:  order.ExecutedQty,
		Price:     fillPrice,
		Fee:       order.TotalFee(),
		OrderID:   order.OrderID,
		Timestamp: order.CreatedAt,
	}

	saveCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := c.rec.SaveTrade(saveCtx, trade); err != nil {
		c.logError(fmt.Sprintf("record trade %s %s", trade.Side, trade.Symbol), err)
	}

	monitoring.RecordTrade(order.Symbol, string(order.Side), order.ExecutedQty*fillPrice)
	if c.log != nil {
		c.log.LogTradeExecution(string(order.Side), order.Symbol, order.OrderID,
			order.ExecutedQty, fillPrice, order.ExecutedQty*fillPrice)
	}
}

// logRiskTransition renders the full risk report into the log whenever the
// risk level changes, leaving an auditable snapshot of every transition.
func (c *Coordinator) logRiskTransition(metrics *risk.RiskMetrics) {
	c.mu.Lock()
	changed := c.lastRiskLevel != metrics.RiskLevel
	c.lastRiskLevel = metrics.RiskLevel
	c.mu.Unlock()

	if !changed || c.log == nil {
		return
	}
	c.log.Status("Risk level now %s\n%s", metrics.RiskLevel, c.riskMgr.BuildReport(metrics).String())
}

// exportSessionReport writes the session's trade ledger to an xlsx workbook.
// Sessions with no trades produce no file.
func (c *Coordinator) exportSessionReport(ctx context.Context, session *recorder.TradingSession) {
	loadCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	trades, err := c.rec.SessionTrades(loadCtx, session.SessionID)
	cancel()
	if err != nil {
		c.logError("load session trades", err)
		return
	}
	if len(trades) == 0 {
		return
	}

	dir := c.cfg.Trading.ReportDir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.logError("create report directory", err)
		return
	}

	path := filepath.Join(dir, fmt.Sprintf("session_%s.xlsx", session.SessionID))
	if err := recorder.ExportSessionXLSX(path, session, trades); err != nil {
		c.logError("export session report", err)
		return
	}
	c.logf("Session report written to %s", path)
}

func (c *Coordinator) monitoredSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

func riskLevelOrdinal(level risk.RiskLevel) int {
	switch level {
	case risk.RiskLevelMedium:
		return 1
	case risk.RiskLevelHigh:
		return 2
	case risk.RiskLevelCritical:
		return 3
	default:
		return 0
	}
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Info(format, args...)
	}
}

func (c *Coordinator) logError(operation string, err error) {
	if c.log != nil {
		c.log.LogError(operation, err)
	}
}

func (c *Coordinator) notify(level, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.SendAlert(level, message); err != nil && c.log != nil {
		c.log.Warning("Notification failed: %v", err)
	}
}
