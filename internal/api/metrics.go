package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docstore-odbc/pkg/sqlreturn"
)

// entryPointMetrics holds the per-entry-point instrumentation.
type entryPointMetrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	PanicsTotal  *prometheus.CounterVec
}

var metrics = &entryPointMetrics{
	CallsTotal: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_odbc_calls_total",
			Help: "Total number of boundary entry point calls",
		},
		[]string{"function", "code"},
	),
	CallDuration: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_odbc_call_duration_seconds",
			Help:    "Entry point latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	),
	PanicsTotal: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_odbc_contained_panics_total",
			Help: "Internal faults contained by the boundary guard",
		},
		[]string{"function"},
	),
}

func observe(entry string, code sqlreturn.Code, elapsed time.Duration) {
	metrics.CallsTotal.WithLabelValues(entry, code.String()).Inc()
	metrics.CallDuration.WithLabelValues(entry).Observe(elapsed.Seconds())
}
