package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"symbol", "side"},
	)

	tradeNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trading_engine_trade_notional",
			Help:    "Distribution of trade notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"symbol"},
	)

	rejectedEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_rejected_entries_total",
			Help: "Entries denied by the risk manager",
		},
		[]string{"category"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trading_engine_current_price",
			Help: "Current price of trading symbol",
		},
		[]string{"symbol"},
	)

	// Engine metrics
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trading_engine_cycle_duration_seconds",
			Help:    "Wall-clock duration of one engine cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_engine_open_positions",
			Help: "Number of currently open positions",
		},
	)

	riskLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_engine_risk_level",
			Help: "Current risk level (0 LOW, 1 MEDIUM, 2 HIGH, 3 CRITICAL)",
		},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_engine_daily_pnl",
			Help: "Daily profit and loss in quote currency",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(tradeNotional)
	prometheus.MustRegister(rejectedEntries)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(riskLevel)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordTrade records a trade metric
func RecordTrade(symbol, side string, notional float64) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
	tradeNotional.WithLabelValues(symbol).Observe(notional)
}

// RecordRejectedEntry records an admission denial. The category must come
// from the risk manager's fixed denial vocabulary; free-form reasons would
// blow up the label cardinality.
func RecordRejectedEntry(category string) {
	rejectedEntries.WithLabelValues(category).Inc()
}

// UpdatePrice updates the current price metric
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// ObserveCycle records the duration of one engine cycle
func ObserveCycle(seconds float64) {
	cycleDuration.Observe(seconds)
}

// UpdateRiskState publishes the per-cycle risk snapshot
func UpdateRiskState(positions int, level int, pnl float64) {
	openPositions.Set(float64(positions))
	riskLevel.Set(float64(level))
	dailyPnL.Set(pnl)
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
