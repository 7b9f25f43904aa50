// Package metrics provides Prometheus metrics for the moderation core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics is valid
// and records nothing, which keeps components usable without a registry.
type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	StrikesTotal         prometheus.Counter
	EscalationsTotal     prometheus.Counter
	PardonsConsumedTotal prometheus.Counter
	CommandsTotal        *prometheus.CounterVec
	UsersPresent         prometheus.Gauge
	EventErrorsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkeeper_messages_total",
				Help: "Chat messages classified, by verdict.",
			},
			[]string{"verdict"},
		),
		StrikesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatkeeper_strikes_total",
				Help: "Strikes recorded against users.",
			},
		),
		EscalationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatkeeper_escalations_total",
				Help: "Users timed out after reaching the strike threshold.",
			},
		),
		PardonsConsumedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatkeeper_pardons_consumed_total",
				Help: "Offenses forgiven by a standing pardon.",
			},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkeeper_commands_total",
				Help: "Command invocations by command and result.",
			},
			[]string{"command", "result"},
		),
		UsersPresent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatkeeper_users_present",
				Help: "Users currently joined to the channel.",
			},
		),
		EventErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatkeeper_event_errors_total",
				Help: "Inbound events whose handling failed, by event kind.",
			},
			[]string{"event"},
		),
		registry: reg,
	}

	reg.MustRegister(m.MessagesTotal)
	reg.MustRegister(m.StrikesTotal)
	reg.MustRegister(m.EscalationsTotal)
	reg.MustRegister(m.PardonsConsumedTotal)
	reg.MustRegister(m.CommandsTotal)
	reg.MustRegister(m.UsersPresent)
	reg.MustRegister(m.EventErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordMessage increments the message counter for a verdict.
func (m *Metrics) RecordMessage(verdict string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(verdict).Inc()
}

// RecordStrike increments the strike counter.
func (m *Metrics) RecordStrike() {
	if m == nil {
		return
	}
	m.StrikesTotal.Inc()
}

// RecordEscalation increments the escalation counter.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.EscalationsTotal.Inc()
}

// RecordPardonConsumed increments the consumed pardon counter.
func (m *Metrics) RecordPardonConsumed() {
	if m == nil {
		return
	}
	m.PardonsConsumedTotal.Inc()
}

// RecordCommand increments the command counter.
func (m *Metrics) RecordCommand(command, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
}

// SetUsersPresent sets the present user gauge.
func (m *Metrics) SetUsersPresent(count int) {
	if m == nil {
		return
	}
	m.UsersPresent.Set(float64(count))
}

// RecordEventError increments the event error counter.
func (m *Metrics) RecordEventError(event string) {
	if m == nil {
		return
	}
	m.EventErrorsTotal.WithLabelValues(event).Inc()
}
