// Package metrics exposes the controller's Prometheus instruments.
//
// Instruments live on a private registry so tests can create as many
// Metrics values as they like without colliding on the global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the controller updates.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal    *prometheus.CounterVec // source, kind, result=accepted|rejected
	RejectionsTotal  *prometheus.CounterVec // source, reason
	TransitionsTotal *prometheus.CounterVec // state, source
	PublishTotal     *prometheus.CounterVec // result=ok|failed|dropped|duplicate
	AdapterErrors    *prometheus.CounterVec // adapter
	AdapterHealthy   *prometheus.GaugeVec   // adapter
	DoorOpen         prometheus.Gauge
	InboxDepth       prometheus.Gauge
	StaleTimersTotal prometheus.Counter

	CommandLatency prometheus.Histogram
}

// New creates the instruments and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garage_commands_total",
				Help: "Door commands processed by source, kind and result",
			},
			[]string{"source", "kind", "result"},
		),
		RejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garage_command_rejections_total",
				Help: "Rejected door commands by source and reason",
			},
			[]string{"source", "reason"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garage_door_transitions_total",
				Help: "Door transitions by resulting state and triggering source",
			},
			[]string{"state", "source"},
		),
		PublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garage_state_publish_total",
				Help: "State publish attempts by result",
			},
			[]string{"result"},
		),
		AdapterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garage_adapter_errors_total",
				Help: "Event source adapter failures",
			},
			[]string{"adapter"},
		),
		AdapterHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "garage_adapter_healthy",
				Help: "1 while the adapter is polling normally, 0 while degraded",
			},
			[]string{"adapter"},
		),
		DoorOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "garage_door_open",
			Help: "1 while the door is open",
		}),
		InboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "garage_inbox_depth",
			Help: "Commands waiting in the coordinator inbox",
		}),
		StaleTimersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "garage_stale_timer_expiries_total",
			Help: "Auto-close expiries dropped because the timer was superseded",
		}),
		CommandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "garage_command_latency_seconds",
			Help:    "Time from command creation to its processing",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}),
	}

	m.registry.MustRegister(
		m.CommandsTotal,
		m.RejectionsTotal,
		m.TransitionsTotal,
		m.PublishTotal,
		m.AdapterErrors,
		m.AdapterHealthy,
		m.DoorOpen,
		m.InboxDepth,
		m.StaleTimersTotal,
		m.CommandLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the instruments are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
