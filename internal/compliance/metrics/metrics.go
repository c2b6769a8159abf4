package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the requirement instance lifecycle. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	InstancesCreated   prometheus.Counter
	StatusChanges      *prometheus.CounterVec
	Acknowledgements   prometheus.Counter
	Snapshots          prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_kernel_compliance_evaluations_total",
			Help: "Asset evaluations by outcome",
		}, []string{"outcome"}),
		EvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_kernel_compliance_evaluation_duration_seconds",
			Help:    "Duration of asset evaluations including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		InstancesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_requirement_instances_created_total",
			Help: "Requirement instances created by evaluation",
		}),
		StatusChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_kernel_requirement_status_changes_total",
			Help: "Requirement status transitions by target status",
		}, []string{"status"}),
		Acknowledgements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_requirement_acknowledgements_total",
			Help: "Platform acknowledgements recorded",
		}),
		Snapshots: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policy_kernel_requirement_snapshots_total",
			Help: "Issuance snapshots taken",
		}),
	}
}

func (m *Metrics) ObserveEvaluation(outcome string, created int, d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(d.Seconds())
	m.InstancesCreated.Add(float64(created))
}

func (m *Metrics) IncStatusChange(status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncAcknowledgement() {
	if m == nil {
		return
	}
	m.Acknowledgements.Inc()
}

func (m *Metrics) IncSnapshot() {
	if m == nil {
		return
	}
	m.Snapshots.Inc()
}
