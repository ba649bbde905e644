// Package metrics defines the prometheus collectors for the engine and
// gateway. Collectors are registered against an injected registerer so
// tests can use isolated registries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all collectors.
type Metrics struct {
	Turns             *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	ToolExecutions    *prometheus.CounterVec
	ApprovalsCreated  prometheus.Counter
	ApprovalsResolved *prometheus.CounterVec
}

// New registers all collectors with reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopgate",
			Name:      "turns_total",
			Help:      "Chat turns processed, by outcome.",
		}, []string{"outcome"}),

		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loopgate",
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of chat turns.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),

		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopgate",
			Name:      "tool_executions_total",
			Help:      "Tool executions requested by the model, by tool and outcome.",
		}, []string{"tool", "outcome"}),

		ApprovalsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "loopgate",
			Name:      "approvals_created_total",
			Help:      "Approval requests created by the gate.",
		}),

		ApprovalsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loopgate",
			Name:      "approvals_resolved_total",
			Help:      "Approval requests resolved, by decision (timeout counts as rejected).",
		}, []string{"decision"}),
	}
}

// ObserveTurn records one finished turn.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

// ObserveTool records one tool execution.
func (m *Metrics) ObserveTool(name, outcome string) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(name, outcome).Inc()
}

// ObserveApprovalCreated records a newly minted approval request.
func (m *Metrics) ObserveApprovalCreated() {
	if m == nil {
		return
	}
	m.ApprovalsCreated.Inc()
}

// ObserveApprovalResolved records a decision on an approval request.
func (m *Metrics) ObserveApprovalResolved(decision string) {
	if m == nil {
		return
	}
	m.ApprovalsResolved.WithLabelValues(decision).Inc()
}
