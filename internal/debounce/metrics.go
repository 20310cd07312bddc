package debounce

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for debounced functions.
type Metrics struct {
	callsTotal        *prometheus.CounterVec
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton debounce metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			callsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "reride",
					Subsystem: "debounce",
					Name:      "calls_total",
					Help:      "Total number of debounced calls received",
				},
				[]string{"name"},
			),
			executionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "reride",
					Subsystem: "debounce",
					Name:      "executions_total",
					Help:      "Total number of debounced function executions by result",
				},
				[]string{"name", "result"},
			),
			executionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "reride",
					Subsystem: "debounce",
					Name:      "execution_duration_seconds",
					Help:      "Duration of debounced function executions",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"name"},
			),
		}
	})
	return metricsInstance
}

// Collectors returns every debounce collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.callsTotal, m.executionsTotal, m.executionDuration}
}
