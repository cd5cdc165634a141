package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes and eviction reasons used as label values
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"

	ReasonDisconnect = "disconnect"
	ReasonWriteError = "write_error"
	ReasonProbe      = "probe_failed"
	ReasonIdle       = "idle"
	ReasonShutdown   = "shutdown"

	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the process collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections *prometheus.GaugeVec
	commands    *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	rooms       *prometheus.GaugeVec
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edujam",
			Name:      "connections_active",
			Help:      "Live WebSocket sessions per channel.",
		}, []string{"channel"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edujam",
			Name:      "commands_total",
			Help:      "Inbound commands by channel, type and result.",
		}, []string{"channel", "type", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edujam",
			Name:      "deliveries_total",
			Help:      "Outbound frame deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edujam",
			Name:      "evictions_total",
			Help:      "Session evictions by channel and reason.",
		}, []string{"channel", "reason"}),
		rooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edujam",
			Name:      "rooms_active",
			Help:      "Live rooms per channel.",
		}, []string{"channel"}),
	}

	m.registry.MustRegister(
		m.connections,
		m.commands,
		m.deliveries,
		m.evictions,
		m.rooms,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry at /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry, for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnectionOpened(channel string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(channel).Inc()
}

func (m *Metrics) ConnectionClosed(channel string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(channel).Dec()
}

func (m *Metrics) Command(channel, commandType, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(channel, commandType, result).Inc()
}

func (m *Metrics) Delivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) Eviction(channel, reason string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) SetRooms(channel string, n int) {
	if m == nil {
		return
	}
	m.rooms.WithLabelValues(channel).Set(float64(n))
}
