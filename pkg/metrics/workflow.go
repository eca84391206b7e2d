package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics counts business outcomes of the cash register workflows.
type WorkflowMetrics struct {
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
	ledger      *prometheus.CounterVec
	sequences   *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow counters on the provided registerer.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caisseflow_funding_transitions_total",
		Help: "Funding request transitions by target stage and outcome.",
	}, []string{"stage", "outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caisseflow_payments_total",
		Help: "Payment recordings and modifications by mode and outcome.",
	}, []string{"operation", "mode", "outcome"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caisseflow_ledger_adjustments_total",
		Help: "Register balance adjustments by transaction type, currency and outcome.",
	}, []string{"type", "currency", "outcome"})
	sequences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caisseflow_reference_numbers_total",
		Help: "Reference numbers minted per family.",
	}, []string{"family"})
	reg.MustRegister(transitions, payments, ledger, sequences)
	return &WorkflowMetrics{
		transitions: transitions,
		payments:    payments,
		ledger:      ledger,
		sequences:   sequences,
	}
}

// IncTransition counts a funding transition attempt.
func (m *WorkflowMetrics) IncTransition(stage, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Inc()
}

// IncPayment counts a payment operation.
func (m *WorkflowMetrics) IncPayment(operation, mode, outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(operation), normalizeLabel(mode), normalizeLabel(outcome)).Inc()
}

// IncLedger counts a balance adjustment.
func (m *WorkflowMetrics) IncLedger(txType, currency, outcome string) {
	if m == nil || m.ledger == nil {
		return
	}
	m.ledger.WithLabelValues(normalizeLabel(txType), normalizeLabel(currency), normalizeLabel(outcome)).Inc()
}

// IncSequence counts a minted reference number.
func (m *WorkflowMetrics) IncSequence(family string) {
	if m == nil || m.sequences == nil {
		return
	}
	m.sequences.WithLabelValues(normalizeLabel(family)).Inc()
}
