package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/engine"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
	"github.com/evanz1215/binance-trading-bot/internal/monitoring"
	"github.com/evanz1215/binance-trading-bot/internal/recorder"
	"github.com/evanz1215/binance-trading-bot/internal/risk"
	"github.com/evanz1215/binance-trading-bot/internal/strategy"
	"github.com/evanz1215/binance-trading-bot/pkg/types"
)

type holdProvider struct{}

func (holdProvider) Analyze(ctx context.Context, symbol string, klines []types.OHLCV) (*strategy.Signal, error) {
	return nil, nil
}
func (holdProvider) RequiredPeriods() int { return 5 }
func (holdProvider) GetName() string      { return "hold" }

func newTestServer(t *testing.T) (*Server, *engine.Coordinator) {
	t.Helper()

	cfg := &config.Config{
		Trading: config.TradingConfig{
			BaseCurrency:      "USDT",
			Interval:          "1h",
			CycleInterval:     time.Minute,
			MaxPositions:      3,
			PositionSizePct:   0.05,
			StopLossPct:       0.05,
			TakeProfitPct:     0.10,
			MaxDailyLossPct:   0.10,
			MaxDrawdownPct:    0.15,
			Whitelist:         []string{"BTCUSDT"},
			DiscoveryInterval: time.Hour,
		},
	}
	sim := exchange.NewSimClient("USDT", 10_000, 7)
	riskMgr := risk.NewManager(sim, &cfg.Trading, nil)
	coordinator := engine.NewCoordinator(cfg, sim, holdProvider{}, riskMgr,
		recorder.NewMemoryRecorder(), nil, monitoring.NewHealthChecker(), nil)

	return NewServer(coordinator, monitoring.NewHealthChecker(), nil), coordinator
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status engine.Status
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.IsRunning)
	assert.Equal(t, "sim", status.Exchange)
}

func TestPositionsEndpointEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Positions []risk.Position `json:"positions"`
	}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Empty(t, payload.Positions)
}

func TestStartStopEndpoints(t *testing.T) {
	s, coordinator := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.StateRunning, coordinator.State())

	// A second start conflicts.
	rec = httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/engine/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.StateStopped, coordinator.State())
}

func TestStartFailureIsServerError(t *testing.T) {
	cfg := &config.Config{
		Trading: config.TradingConfig{
			BaseCurrency:      "USDT",
			Interval:          "1h",
			CycleInterval:     time.Minute,
			MaxPositions:      3,
			PositionSizePct:   0.05,
			StopLossPct:       0.05,
			TakeProfitPct:     0.10,
			MaxDailyLossPct:   0.10,
			MaxDrawdownPct:    0.15,
			MinVolume24h:      1e12, // discovery finds nothing to trade
			DiscoveryInterval: time.Hour,
		},
	}
	sim := exchange.NewSimClient("USDT", 10_000, 7)
	riskMgr := risk.NewManager(sim, &cfg.Trading, nil)
	coordinator := engine.NewCoordinator(cfg, sim, holdProvider{}, riskMgr,
		recorder.NewMemoryRecorder(), nil, nil, nil)
	s := NewServer(coordinator, nil, nil)

	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", nil))

	// A failed initialization is not the caller's fault and must not be
	// reported as a state conflict.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, engine.StateStopped, coordinator.State())
}

func TestStopWithoutStartConflicts(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/engine/stop", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRiskEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report risk.Report
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotZero(t, report.Metrics.TotalBalance)
}

func TestHealthRouteMounted(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	// Disconnected engine reports degraded, but the route must exist.
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
}
