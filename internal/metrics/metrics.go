// ABOUTME: Prometheus collectors for the gateway client, web client hub, and briefing
// ABOUTME: Collectors implement gateway.Observer and serve their own registry over HTTP

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-dashboard/internal/gateway"
)

const namespace = "coven_dashboard"

var _ gateway.Observer = (*Collectors)(nil)

// Collectors holds every dashboard metric on a private registry.
type Collectors struct {
	registry *prometheus.Registry

	gatewayState      *prometheus.GaugeVec
	gatewayPending    prometheus.Gauge
	gatewayRequests   *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec
	gatewayReconnects prometheus.Counter

	hubClients prometheus.Gauge

	briefings *prometheus.CounterVec
}

var gatewayStates = []gateway.State{
	gateway.StateDisconnected,
	gateway.StateConnecting,
	gateway.StateAwaitingHandshake,
	gateway.StateReady,
}

// New creates and registers the collectors. Go runtime and process
// collectors are included.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		gatewayState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "state",
				Help:      "1 for the current gateway connection state, 0 otherwise",
			},
			[]string{"state"},
		),
		gatewayPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "pending_requests",
			Help:      "Requests awaiting a gateway reply",
		}),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Gateway requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		gatewayLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Time from sending a gateway request to its completion",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 90},
			},
			[]string{"method"},
		),
		gatewayReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after the socket closed or a dial failed",
		}),
		hubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "clients",
			Help:      "Connected web clients",
		}),
		briefings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "briefing",
				Name:      "generations_total",
				Help:      "Briefings generated, by text source",
			},
			[]string{"source"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.gatewayState,
		c.gatewayPending,
		c.gatewayRequests,
		c.gatewayLatency,
		c.gatewayReconnects,
		c.hubClients,
		c.briefings,
	)
	c.StateChanged(gateway.StateDisconnected)

	return c
}

// StateChanged implements gateway.Observer.
func (c *Collectors) StateChanged(state gateway.State) {
	for _, s := range gatewayStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.gatewayState.WithLabelValues(s.String()).Set(v)
	}
}

// RequestFinished implements gateway.Observer.
func (c *Collectors) RequestFinished(method, outcome string, elapsed time.Duration) {
	c.gatewayRequests.WithLabelValues(method, outcome).Inc()
	if outcome != gateway.OutcomeNotConnected {
		c.gatewayLatency.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// PendingChanged implements gateway.Observer.
func (c *Collectors) PendingChanged(n int) {
	c.gatewayPending.Set(float64(n))
}

// ReconnectScheduled implements gateway.Observer.
func (c *Collectors) ReconnectScheduled() {
	c.gatewayReconnects.Inc()
}

// ClientsChanged records the number of connected web clients.
func (c *Collectors) ClientsChanged(n int) {
	c.hubClients.Set(float64(n))
}

// BriefingGenerated counts a freshly composed briefing.
func (c *Collectors) BriefingGenerated(source string) {
	c.briefings.WithLabelValues(source).Inc()
}

// Registry exposes the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
