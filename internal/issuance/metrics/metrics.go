package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for issuance and preflight. A nil *Metrics records nothing.
type Metrics struct {
	Created  prometheus.Counter
	Replayed prometheus.Counter
	Shared   prometheus.Counter
	Blockers *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_issuances_created_total",
			Help: "Issuances created",
		}),
		Replayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_issuance_replays_total",
			Help: "Issuance requests answered from the idempotency store",
		}),
		Shared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_issuance_shared_calls_total",
			Help: "Concurrent issuance requests collapsed onto an in-flight call",
		}),
		Blockers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_kernel_preflight_blockers_total",
			Help: "Preflight blockers reported by code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncCreated() {
	if m == nil {
		return
	}
	m.Created.Inc()
}

func (m *Metrics) IncReplayed() {
	if m == nil {
		return
	}
	m.Replayed.Inc()
}

func (m *Metrics) IncShared() {
	if m == nil {
		return
	}
	m.Shared.Inc()
}

func (m *Metrics) IncBlocker(code string) {
	if m == nil {
		return
	}
	m.Blockers.WithLabelValues(code).Inc()
}
