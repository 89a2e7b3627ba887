// Package metrics provides performance tracking and observability for
// Stratum using Prometheus metrics.
//
// The dispatch core records one observation per operation: a counter keyed
// by entity kind, operation and outcome, and a latency histogram keyed by
// entity kind and operation. Registry and container lifecycles feed the
// gauges.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	err := invokeConnector(...)
//	metrics.ObserveDispatch("dataset", "read", err, timer.Stop())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchOperations counts dispatched operations by kind, op and outcome
	DispatchOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_dispatch_operations_total",
			Help: "Total operations routed through the dispatch layer",
		},
		[]string{"kind", "op", "status"},
	)

	// DispatchLatency tracks dispatch latency by kind and op
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratum_dispatch_latency_seconds",
			Help:    "Latency of dispatched operations",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"kind", "op"},
	)

	// ActiveContainers tracks currently open containers
	ActiveContainers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_active_containers",
			Help: "Number of open containers",
		},
	)

	// RegisteredConnectors tracks live connector instances
	RegisteredConnectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_registered_connectors",
			Help: "Number of registered connector instances",
		},
	)

	// AsyncRequests tracks in-flight async requests
	AsyncRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_async_requests",
			Help: "Number of in-flight async requests",
		},
	)
)

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveDispatch records one dispatched operation
func ObserveDispatch(kind, op string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DispatchOperations.WithLabelValues(kind, op, status).Inc()
	DispatchLatency.WithLabelValues(kind, op).Observe(elapsed.Seconds())
}
