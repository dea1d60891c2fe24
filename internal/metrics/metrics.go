// Package metrics defines the Prometheus counters keybridge exports.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and one-shot CLI commands.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultDropped  = "dropped"
	ResultRejected = "rejected"
)

// Metrics bundles the counters.
type Metrics struct {
	eventsDropped     prometheus.Counter
	reconnectAttempts *prometheus.CounterVec
	commands          *prometheus.CounterVec
	webhookRequests   *prometheus.CounterVec
	gatewaySends      *prometheus.CounterVec
}

// New creates the counters under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Bridge events dropped because the event queue was full.",
		}),
		reconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts by result.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Bridge commands handled by kind and result.",
		}, []string{"cmd", "result"}),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook callbacks by result.",
		}, []string{"result"}),
		gatewaySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_sends_total",
			Help:      "Outbound gateway messages by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{
		m.eventsDropped, m.reconnectAttempts, m.commands, m.webhookRequests, m.gatewaySends,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) ReconnectAttempt(result string) {
	if m == nil {
		return
	}
	m.reconnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Command(cmd, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(cmd, result).Inc()
}

func (m *Metrics) WebhookRequest(result string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) GatewaySend(result string) {
	if m == nil {
		return
	}
	m.gatewaySends.WithLabelValues(result).Inc()
}
