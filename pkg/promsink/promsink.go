// Package promsink exposes tracker activity as Prometheus metrics.
package promsink

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkbrsn/httpscope"
)

const namespace = "httpscope"

// Metrics is an httpscope.MetricsSink backed by its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration   *prometheus.HistogramVec
	RequestsTotal     *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	TransportFailures prometheus.Counter
	InFlight          prometheus.Gauge
}

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of measured HTTP exchanges",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "host", "code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total measured HTTP exchanges",
		}, []string{"method", "host", "code"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total tracker events by name",
		}, []string{"event"}),
		TransportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_failures_total",
			Help:      "Total exchanges that ended without a response",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests started and not yet stopped",
		}),
	}
	r.MustRegister(m.RequestDuration, m.RequestsTotal, m.EventsTotal, m.TransportFailures, m.InFlight)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMeasurement records the duration and outcome of a measurement.
func (m *Metrics) ObserveMeasurement(ms httpscope.Measurement) {
	method, host := "", ""
	if ms.Request != nil {
		method = ms.Request.Method
		if ms.Request.URL != nil {
			host = ms.Request.URL.Hostname()
		}
	}
	code := "none"
	if c := ms.StatusCode(); c > 0 {
		code = strconv.Itoa(c)
	}
	m.RequestDuration.WithLabelValues(method, host, code).Observe(ms.Duration().Seconds())
	m.RequestsTotal.WithLabelValues(method, host, code).Inc()
}

// ObserveEvent counts tracker events. The in-flight gauge is set from the pending count the
// tracker reports with every event, so overwritten and never-stopped starts cannot skew it.
func (m *Metrics) ObserveEvent(name string, fields map[string]any) {
	m.EventsTotal.WithLabelValues(name).Inc()
	if name == httpscope.EventTransportFailure {
		m.TransportFailures.Inc()
	}
	if pending, ok := fields[httpscope.EventFieldPending].(int); ok {
		m.InFlight.Set(float64(pending))
	}
}
