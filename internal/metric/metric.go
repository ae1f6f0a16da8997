// Package metric exposes Prometheus metrics for the gateway.
package metric

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/graphgate/internal/eventbus"
	events "github.com/hanpama/graphgate/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all gateway metrics on a private registry.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	upstreamTotal     *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	batchWindowsTotal *prometheus.CounterVec
	batchWindowKeys   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphgate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphgate",
				Name:      "graphql_operations_total",
				Help:      "Total number of executed GraphQL operations",
			},
			[]string{"operation_type", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphgate",
				Name:      "graphql_operation_duration_seconds",
				Help:      "GraphQL operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation_type"},
		),
		upstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphgate",
				Name:      "upstream_requests_total",
				Help:      "Total number of GraphQL requests sent to backends",
			},
			[]string{"backend", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphgate",
				Name:      "upstream_duration_seconds",
				Help:      "Backend request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"backend"},
		),
		batchWindowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "graphgate",
				Name:      "batch_windows_total",
				Help:      "Total number of flushed batch key-resolution windows",
			},
			[]string{"object_type", "field", "status"},
		),
		batchWindowKeys: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "graphgate",
				Name:      "batch_window_keys",
				Help:      "Number of keys collected per batch window",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"object_type", "field"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.operationsTotal,
		m.operationDuration,
		m.upstreamTotal,
		m.upstreamDuration,
		m.batchWindowsTotal,
		m.batchWindowKeys,
	)

	return m
}

// Handler returns the Prometheus scrape handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RegisterSubscribers attaches eventbus handlers that feed the collectors.
// The returned function detaches them.
func (m *Metrics) RegisterSubscribers() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			m.requestsTotal.WithLabelValues(e.Method, e.Path, strconv.Itoa(e.Status)).Inc()
			m.requestDuration.WithLabelValues(e.Method, e.Path).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			m.operationsTotal.WithLabelValues(e.OperationType, status).Inc()
			m.operationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.UpstreamCallFinish) {
			status := strconv.Itoa(e.Status)
			if e.Err != nil && e.Status == 0 {
				status = "transport_error"
			}
			m.upstreamTotal.WithLabelValues(e.Backend, status).Inc()
			m.upstreamDuration.WithLabelValues(e.Backend).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.BatchWindowFlush) {
			status := "ok"
			if e.Err != nil {
				status = "error"
			}
			m.batchWindowsTotal.WithLabelValues(e.ObjectType, e.Field, status).Inc()
			m.batchWindowKeys.WithLabelValues(e.ObjectType, e.Field).Observe(float64(e.Keys))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
