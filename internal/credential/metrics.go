package credential

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is told about every operation the service completes.
// result is "ok", an ir.ErrorCode, or "error" for infrastructure failures.
type Observer interface {
	Observe(op, result string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string, time.Duration) {}

// Metrics is an Observer exporting Prometheus metrics.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soulbound",
			Name:      "operations_total",
			Help:      "Credential operations by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soulbound",
			Name:      "operation_duration_seconds",
			Help:      "Credential operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{m.ops, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Observe implements Observer.
func (m *Metrics) Observe(op, result string, elapsed time.Duration) {
	m.ops.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
