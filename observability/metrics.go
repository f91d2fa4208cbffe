package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	reservations *prometheus.CounterVec
	fallbacks    prometheus.Counter
	mints        *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// RPCMetrics returns the lazily-initialised metrics registry used to record
// JSON-RPC activity, reservations, and delegated-mint submissions.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dropforge",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dropforge",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dropforge",
				Subsystem: "allocator",
				Name:      "reserved_items_total",
				Help:      "Items handed out through sequence reservations, by group.",
			}, []string{"group"}),
			fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dropforge",
				Subsystem: "allocator",
				Name:      "fallback_draws_total",
				Help:      "Draws served by the weighted fallback sampler.",
			}),
			mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dropforge",
				Subsystem: "mint",
				Name:      "submissions_total",
				Help:      "Delegated-mint submissions segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.reservations,
			rpcRegistry.fallbacks,
			rpcRegistry.mints,
		)
	})
	return rpcRegistry
}

// ObserveRequest records the outcome and latency of one JSON-RPC request.
func (m *rpcMetrics) ObserveRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordReservation counts items granted for a group.
func (m *rpcMetrics) RecordReservation(group string, count uint64) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(group).Add(float64(count))
}

// RecordFallback counts draws served by the weighted sampler.
func (m *rpcMetrics) RecordFallback(count uint64) {
	if m == nil {
		return
	}
	m.fallbacks.Add(float64(count))
}

// RecordMint counts a delegated-mint submission by outcome.
func (m *rpcMetrics) RecordMint(outcome string) {
	if m == nil {
		return
	}
	m.mints.WithLabelValues(outcome).Inc()
}
