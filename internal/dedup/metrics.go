package dedup

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for request deduplication.
type Metrics struct {
	callsTotal  *prometheus.CounterVec
	inFlight    *prometheus.GaugeVec
	panicsTotal *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton dedup metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			callsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "reride",
					Subsystem: "dedup",
					Name:      "calls_total",
					Help:      "Total number of deduplicated calls by result (executed, shared, abandoned)",
				},
				[]string{"group", "result"},
			),
			inFlight: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "reride",
					Subsystem: "dedup",
					Name:      "in_flight",
					Help:      "Number of keys with a pending shared call",
				},
				[]string{"group"},
			),
			panicsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "reride",
					Subsystem: "dedup",
					Name:      "panics_total",
					Help:      "Total number of shared calls that panicked",
				},
				[]string{"group"},
			),
		}
	})
	return metricsInstance
}

// Collectors returns every dedup collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.callsTotal, m.inFlight, m.panicsTotal}
}
