// Package metrics defines the Prometheus instruments of the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "solarbridge"

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Drop reasons.
const (
	ReasonUnknownSubject = "unknown_subject"
	ReasonMalformed      = "malformed"
)

type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	RowsWritten      prometheus.Counter
	RowWriteFailures prometheus.Counter
	Publishes        *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	SessionState     prometheus.Gauge
	SessionChanges   *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_received_total",
			Help:      "Bus messages accepted by the decoder, by sensor.",
		}, []string{"sensor"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_dropped_total",
			Help:      "Bus messages dropped before reaching the state store.",
		}, []string{"reason"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_written_total",
			Help:      "Snapshot rows appended to storage.",
		}),
		RowWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_write_failures_total",
			Help:      "Snapshot rows lost to storage errors.",
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publishes_total",
			Help:      "Messages published to the bus, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Control-channel commands handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current control-channel session state (0 unauthenticated, 1 pairing, 2 authenticated, 3 disconnected, 4 logged out).",
		}),
		SessionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Control-channel session state transitions, by target state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.MessagesReceived,
		m.MessagesDropped,
		m.RowsWritten,
		m.RowWriteFailures,
		m.Publishes,
		m.Commands,
		m.SessionState,
		m.SessionChanges,
	)

	return m
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}
