// Package metrics exposes Prometheus counters and gauges for the session core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/bunbase/tabsync/internal/errors"
)

const namespace = "tabsync"

type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal       *prometheus.CounterVec // kind (read|write), status (ok|error)
	RetryAttemptsTotal prometheus.Counter
	BroadcastsTotal    *prometheus.CounterVec // transport
	NotificationsTotal *prometheus.CounterVec // transport
	ProbeFailuresTotal prometheus.Counter
	ReinitsTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec // category
	ConnectionState    prometheus.Gauge
	QueueDepth         prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Statements executed, by kind and status.",
		}, []string{"kind", "status"}),
		RetryAttemptsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Statement attempts beyond the first.",
		}),
		BroadcastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Change notifications published, by transport.",
		}, []string{"transport"}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Change notifications delivered to listeners, by transport.",
		}, []string{"transport"}),
		ProbeFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Liveness probe round-trips that failed.",
		}),
		ReinitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reinits_total",
			Help:      "Automatic teardown-and-reinitialize cycles.",
		}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors observed, by category.",
		}, []string{"category"}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state (0 uninitialized, 1 initializing, 2 ready, 3 degraded, 4 closed).",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending operations waiting in the transaction queue.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordError bumps the error counter for the classified category.
func (m *Metrics) RecordError(category errors.ErrorCategory) {
	m.ErrorsTotal.WithLabelValues(errors.CategoryString(category)).Inc()
}
