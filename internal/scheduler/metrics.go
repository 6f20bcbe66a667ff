package scheduler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the scheduler.
type Metrics struct {
	TicksTotal       *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	TickDuration     prometheus.Histogram
}

// NewMetrics registers the scheduler metrics once per process.
//
// Metrics:
//   - memo_scheduler_ticks_total{result} - ticks by "ok" or "error"
//   - memo_scheduler_transitions_total{result} - due transitions by "ok", "skipped" or "error"
//   - memo_scheduler_tick_duration_seconds - tick latency
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TicksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memo_scheduler_ticks_total",
					Help: "Total number of scheduler ticks",
				},
				[]string{"result"},
			),
			TransitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memo_scheduler_transitions_total",
					Help: "Total number of scheduled to due transitions attempted",
				},
				[]string{"result"},
			),
			TickDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memo_scheduler_tick_duration_seconds",
					Help:    "Duration of a scheduler tick in seconds",
					Buckets: prometheus.DefBuckets,
				},
			),
		}
	})
	return globalMetrics
}
