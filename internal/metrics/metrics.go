// Package metrics exposes the chat client's Prometheus counters.
//
// A nil *Metrics is valid and records nothing, so callers never need to check
// whether metrics were enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatsync"

// Command outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeSkipped = "skipped"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	reportsTotal    *prometheus.CounterVec
	reconciledTotal prometheus.Counter
	historyDuration *prometheus.HistogramVec
	connected       prometheus.Gauge
}

// New creates a Metrics instance with its own registry. Go runtime and
// process collectors are registered alongside the chat metrics.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Outbound socket commands by outcome",
		},
		[]string{"command", "outcome"},
	)
	m.registry.MustRegister(m.commandsTotal)

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound socket events",
		},
		[]string{"event"},
	)
	m.registry.MustRegister(m.eventsTotal)

	m.reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Errors routed to the error-reporting hook",
		},
		[]string{"kind"},
	)
	m.registry.MustRegister(m.reportsTotal)

	m.reconciledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_reconciled_total",
			Help:      "Optimistic messages replaced by their server echo",
		},
	)
	m.registry.MustRegister(m.reconciledTotal)

	m.historyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_load_duration_seconds",
			Help:      "Backlog fetch duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"result"},
	)
	m.registry.MustRegister(m.historyDuration)

	m.connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the realtime transport is connected",
		},
	)
	m.registry.MustRegister(m.connected)

	return m
}

// CommandSent counts a command handed to the transport.
func (m *Metrics) CommandSent(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, OutcomeSent).Inc()
}

// CommandSkipped counts a command dropped while disconnected.
func (m *Metrics) CommandSkipped(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, OutcomeSkipped).Inc()
}

// EventReceived counts an inbound server event.
func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event).Inc()
}

// Reported counts a report of the given kind.
func (m *Metrics) Reported(kind string) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(kind).Inc()
}

// MessageReconciled counts an optimistic message confirmed in place.
func (m *Metrics) MessageReconciled() {
	if m == nil {
		return
	}
	m.reconciledTotal.Inc()
}

// ObserveHistoryLoad records a backlog fetch.
func (m *Metrics) ObserveHistoryLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.historyDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetConnected records the transport state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
