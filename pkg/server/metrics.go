package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	datasource *prometheus.GaugeVec
}

// NewMetrics registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pebble_api",
			Name:      "requests_total",
			Help:      "Requests served, by method, entity and status code.",
		}, []string{"method", "entity", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pebble_api",
			Name:      "request_duration_seconds",
			Help:      "Request latency, by method and entity.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "entity"}),
		datasource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pebble_api",
			Name:      "datasource_up",
			Help:      "1 when the last health check of a datasource succeeded.",
		}, []string{"datasource"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.datasource,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) observe(method, entity string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, entity, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, entity).Observe(elapsed.Seconds())
}

func (m *Metrics) setDatasource(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.datasource.WithLabelValues(name).Set(v)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
