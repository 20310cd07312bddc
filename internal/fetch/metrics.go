package fetch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache outcome label values.
const (
	outcomeHit   = "hit"
	outcomeMiss  = "miss"
	outcomeError = "error"
)

// Metrics holds Prometheus metrics for upstream fetches.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	cacheOutcomes      *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton fetch metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// Collectors returns every fetch collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.cacheOutcomes,
		m.breakerTransitions,
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reride",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream HTTP requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reride",
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Duration of upstream HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		cacheOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reride",
				Subsystem: "fetch",
				Name:      "results_total",
				Help:      "Total number of cached fetches by outcome",
			},
			[]string{"outcome"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reride",
				Subsystem: "upstream",
				Name:      "circuit_breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
	}
}
