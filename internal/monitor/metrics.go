package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	openPositions     prometheus.Gauge
	skippedPositions  *prometheus.CounterVec
	riskPercent       *prometheus.GaugeVec
	alertsTotal       *prometheus.CounterVec
	alertsSuppressed  *prometheus.CounterVec
	exchangeRequests  *prometheus.CounterVec
	notifyAttempts    *prometheus.CounterVec
	cacheHitTotal     *prometheus.CounterVec
	cacheMissTotal    *prometheus.CounterVec
	natsConnected     prometheus.Gauge
	eventsPublished   *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
}

// NewMetrics 创建指标收集器
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of monitor cycles",
			},
			[]string{"result"}, // ok, degraded, failed
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Monitor cycle duration",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		openPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_positions",
				Help:      "Open positions seen in the last cycle",
			},
		),
		skippedPositions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "positions_skipped_total",
				Help:      "Positions skipped during evaluation",
			},
			[]string{"reason"},
		),
		riskPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "risk_percent",
				Help:      "Remaining distance to liquidation in percent",
			},
			[]string{"symbol", "side"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alerts dispatched",
			},
			[]string{"kind", "outcome"},
		),
		alertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_suppressed_total",
				Help:      "Alerts suppressed by the gate",
			},
			[]string{"kind", "reason"},
		),
		exchangeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchange_requests_total",
				Help:      "Exchange REST requests",
			},
			[]string{"endpoint", "status"},
		),
		notifyAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notify_attempts_total",
				Help:      "Notification send attempts",
			},
			[]string{"status"},
		),
		cacheHitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hit_total",
				Help:      "缓存命中总数（按缓存类型）",
			},
			[]string{"cache_type"},
		),
		cacheMissTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_miss_total",
				Help:      "缓存未命中总数（按缓存类型）",
			},
			[]string{"cache_type"},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Alert events published to NATS",
			},
			[]string{"status"},
		),
		persistenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persistence_errors_total",
				Help:      "State read/write failures",
			},
			[]string{"op"},
		),
	}

	prometheus.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.openPositions,
		m.skippedPositions,
		m.riskPercent,
		m.alertsTotal,
		m.alertsSuppressed,
		m.exchangeRequests,
		m.notifyAttempts,
		m.cacheHitTotal,
		m.cacheMissTotal,
		m.natsConnected,
		m.eventsPublished,
		m.persistenceErrors,
	)

	return m
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("liq_monitor")
	})
	return globalMetrics
}

// InitMetrics 初始化指标
func InitMetrics() {
	GetMetrics()
}

func (m *Metrics) IncCycle(result string) {
	m.cyclesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCycleDuration(seconds float64) {
	m.cycleDuration.Observe(seconds)
}

func (m *Metrics) SetOpenPositions(n int) {
	m.openPositions.Set(float64(n))
}

func (m *Metrics) IncSkippedPosition(reason string) {
	m.skippedPositions.WithLabelValues(reason).Inc()
}

// SetRisk 记录单个持仓风险值
func (m *Metrics) SetRisk(symbol, side string, pct float64) {
	m.riskPercent.WithLabelValues(symbol, side).Set(pct)
}

// ResetRisk 清除已平仓的旧标签
func (m *Metrics) ResetRisk() {
	m.riskPercent.Reset()
}

func (m *Metrics) IncAlert(kind, outcome string) {
	m.alertsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncAlertSuppressed(kind, reason string) {
	m.alertsSuppressed.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) IncExchangeRequest(endpoint, status string) {
	m.exchangeRequests.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) IncNotifyAttempt(status string) {
	m.notifyAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) IncCacheHit(cacheType string) {
	m.cacheHitTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) IncCacheMiss(cacheType string) {
	m.cacheMissTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}

func (m *Metrics) IncEventPublished(status string) {
	m.eventsPublished.WithLabelValues(status).Inc()
}

func (m *Metrics) IncPersistenceError(op string) {
	m.persistenceErrors.WithLabelValues(op).Inc()
}
