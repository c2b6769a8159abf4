package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the authorization handshake. A nil *Metrics records nothing.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	InvitesIssued  prometheus.Counter
	LockWaitTimeMs prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_kernel_authorization_transitions_total",
			Help: "Authorization transitions by event and target state",
		}, []string{"event", "to"}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_kernel_authorization_rejections_total",
			Help: "Rejected authorization operations by reason",
		}, []string{"reason"}),
		InvitesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_authorization_invites_issued_total",
			Help: "Authorization invitations issued",
		}),
		LockWaitTimeMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_kernel_authorization_lock_wait_ms",
			Help:    "Time spent waiting for the per-holder lock",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
		}),
	}
}

func (m *Metrics) IncTransition(event, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(event, to).Inc()
}

func (m *Metrics) IncRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "other"
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncInvite() {
	if m == nil {
		return
	}
	m.InvitesIssued.Inc()
}

func (m *Metrics) ObserveLockWait(ms float64) {
	if m == nil {
		return
	}
	m.LockWaitTimeMs.Observe(ms)
}
