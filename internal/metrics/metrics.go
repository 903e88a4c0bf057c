// Package metrics counts what replicas do. A nil *Metrics is valid and
// records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	Operations *prometheus.CounterVec
	Messages   *prometheus.CounterVec
	Events     *prometheus.CounterVec
	Flushes    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodlesync",
			Name:      "operations_total",
			Help:      "Local operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodlesync",
			Name:      "messages_total",
			Help:      "Inbound direct messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodlesync",
			Name:      "events_total",
			Help:      "Inbound broadcast entries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doodlesync",
			Name:      "outbox_effects_total",
			Help:      "Outbound effects flushed to the transport by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Messages, m.Events, m.Flushes)
	}
	return m
}

func (m *Metrics) Operation(name, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Message(kind, outcome string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Event(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Flush(outcome string) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(outcome).Inc()
}
