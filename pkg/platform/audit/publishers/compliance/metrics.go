package compliance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit persistence outcomes.
type Metrics struct {
	Emitted  *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics registers audit publisher metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_kernel_audit_events_total",
			Help: "Audit events by action and persistence outcome",
		}, []string{"action", "outcome"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_kernel_audit_emit_duration_seconds",
			Help:    "Duration of synchronous audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) observe(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Emitted.WithLabelValues(action, outcome).Inc()
	m.Duration.Observe(d.Seconds())
}
