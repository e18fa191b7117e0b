// Package metrics records orchestrator operation metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the prometheus collectors for both managers.
type Recorder struct {
	operations           *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec
	cacheSize            prometheus.Gauge
	cacheRefreshFailures prometheus.Counter
}

// New creates a Recorder registered against the given registerer.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_operations_total",
				Help: "Total number of orchestrator operations",
			},
			[]string{"component", "operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_operation_duration_seconds",
				Help:    "Orchestrator operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // From 1ms to ~32s
			},
			[]string{"component", "operation"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_compute_cache_entries",
				Help: "Number of compute records currently cached",
			},
		),
		cacheRefreshFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "orchestrator_cache_refresh_failures_total",
				Help: "Total number of failed background cache refreshes",
			},
		),
	}
}

// NewNop creates a Recorder backed by a private registry. Intended for
// tests and for callers that do not expose metrics.
func NewNop() *Recorder {
	return New(prometheus.NewRegistry())
}

// RecordOperation records one manager operation with its duration and
// outcome.
func (r *Recorder) RecordOperation(component, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.operations.WithLabelValues(component, operation, status).Inc()
	r.operationDuration.WithLabelValues(component, operation).Observe(time.Since(start).Seconds())
}

// SetCacheSize reports the current compute cache size.
func (r *Recorder) SetCacheSize(n int) {
	r.cacheSize.Set(float64(n))
}

// RecordCacheRefreshFailure counts a failed background refresh.
func (r *Recorder) RecordCacheRefreshFailure() {
	r.cacheRefreshFailures.Inc()
}
