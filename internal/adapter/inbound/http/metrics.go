package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/service"
)

const metricsNamespace = "unified_adapter"

// Metrics holds all Prometheus metrics for the adapter.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
	RegistryTools         prometheus.Gauge
	AuthFailuresTotal     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"route", "method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		ToolExecutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tool_executions_total",
				Help:      "Total tool executions by adapter type and outcome",
			},
			[]string{"adapter_type", "outcome"},
		),
		ToolExecutionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "tool_execution_duration_seconds",
				Help:      "Tool execution duration in seconds, including retries",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"adapter_type"},
		),
		RegistryTools: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "registry_tools",
				Help:      "Number of tools in the current registry snapshot",
			},
		),
		AuthFailuresTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_failures_total",
				Help:      "Total requests rejected for a missing or invalid bearer token",
			},
		),
	}
}

// ObserveExecution records one finished tool execution.
func (m *Metrics) ObserveExecution(adapterType, outcome string, duration time.Duration) {
	m.ToolExecutionsTotal.WithLabelValues(adapterType, outcome).Inc()
	m.ToolExecutionDuration.WithLabelValues(adapterType).Observe(duration.Seconds())
}

var _ service.ExecutionRecorder = (*Metrics)(nil)
