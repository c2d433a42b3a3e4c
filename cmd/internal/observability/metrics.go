// Package observability exposes sitegate's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitegate"

// Metrics holds the collectors for sign-in outcomes and realtime connections.
//
// It implements session.OutcomeRecorder; the realtime side takes its
// counter and gauge through small interfaces so neither imports Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	authOutcomes       *prometheus.CounterVec
	channelAuthFailure prometheus.Counter
	wsConnections      prometheus.Gauge
	buildEvents        prometheus.Counter
}

// New registers sitegate collectors on a fresh registry.
// Go runtime and process collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "signin_outcomes_total",
			Help:      "Sign-in handshake completions by outcome.",
		}, []string{"outcome"}),
		channelAuthFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "channel_authorization_failures_total",
			Help:      "Realtime connections whose channel authorization failed and degraded to no channels.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open realtime WebSocket connections.",
		}),
		buildEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "build_events_delivered_total",
			Help:      "Build status envelopes accepted by connection queues.",
		}),
	}
	reg.MustRegister(m.authOutcomes, m.channelAuthFailure, m.wsConnections, m.buildEvents)
	return m
}

// RecordAuthOutcome counts one sign-in outcome.
func (m *Metrics) RecordAuthOutcome(outcome string) {
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

// ChannelAuthFailures counts realtime authorizations that degraded to no channels.
func (m *Metrics) ChannelAuthFailures() prometheus.Counter { return m.channelAuthFailure }

// Connections is the live connection gauge.
func (m *Metrics) Connections() prometheus.Gauge { return m.wsConnections }

// BuildEventsDelivered adds n delivered build envelopes.
func (m *Metrics) BuildEventsDelivered(n int) {
	if n > 0 {
		m.buildEvents.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
