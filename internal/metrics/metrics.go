// Package metrics exposes Prometheus collectors for the real-time layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "huddle"

// Metrics groups the collectors used across the service. A nil *Metrics is
// valid and records nothing, so components can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	Connections       prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	MessagesIngested  *prometheus.CounterVec
	FramesDelivered   *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	DuplicatesDropped *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live socket connections on this instance.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one live connection on this instance.",
		}),
		MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Inbound NewMessage events by outcome.",
		}, []string{"outcome"}),
		FramesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Frames handed to connection outboxes by event.",
		}, []string{"event"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a connection outbox was full or closed.",
		}),
		DuplicatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Backbone deliveries suppressed as duplicates by topic kind.",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed backbone publishes by topic kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.OnlineUsers,
		m.MessagesIngested,
		m.FramesDelivered,
		m.FramesDropped,
		m.DuplicatesDropped,
		m.PublishFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.OnlineUsers.Set(float64(n))
	}
}

func (m *Metrics) Ingested(outcome string) {
	if m != nil {
		m.MessagesIngested.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Delivered(event string, n int) {
	if m != nil && n > 0 {
		m.FramesDelivered.WithLabelValues(event).Add(float64(n))
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) Duplicate(kind string) {
	if m != nil {
		m.DuplicatesDropped.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PublishFailed(kind string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(kind).Inc()
	}
}
