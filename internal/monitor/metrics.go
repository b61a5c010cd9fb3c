package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Pool metrics
	WorkersActive prometheus.Gauge

	// Resilience metrics
	PluginsDisabled prometheus.Counter
}

// NewMetrics creates a new metrics collector registered against reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry or a
// fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_executions_total",
				Help: "Total number of plugin executions",
			},
			[]string{"plugin", "status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_execution_duration_seconds",
				Help:    "Plugin execution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"plugin"},
		),
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_workers_active",
				Help: "Number of workers currently executing",
			},
		),
		PluginsDisabled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_plugins_disabled_total",
				Help: "Total number of plugins disabled by the circuit breaker",
			},
		),
	}
}

func (m *Metrics) observeExecution(pluginID string, d time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.ExecutionsTotal.WithLabelValues(pluginID, status).Inc()
	m.ExecutionDuration.WithLabelValues(pluginID).Observe(d.Seconds())
}
