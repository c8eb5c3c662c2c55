package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the server's Prometheus collectors on a private registry so
// embedding applications cannot collide with the default one.
type Metrics struct {
	registry *prometheus.Registry

	resolveTotal     *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	refreshTotal     prometheus.Counter
	routesGauge      prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routefs",
			Name:      "resolve_total",
			Help:      "Route resolutions by outcome.",
		}, []string{"outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "routefs",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency by route kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		refreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "routefs",
			Name:      "index_refresh_total",
			Help:      "Snapshot publications since start.",
		}),
		routesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "routefs",
			Name:      "routes",
			Help:      "Routes in the current snapshot.",
		}),
	}

	m.registry.MustRegister(
		m.resolveTotal,
		m.dispatchDuration,
		m.refreshTotal,
		m.routesGauge,
		collectors.NewGoCollector(),
	)

	return m
}
