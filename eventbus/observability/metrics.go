// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the eventbus, adapted from coreengine/observability's
// promauto/OTLP wiring.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// PUBLISH METRICS
// =============================================================================

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_publish_total",
			Help: "Total number of Publish calls",
		},
		[]string{"channel", "status"}, // status: ok, error
	)

	publishRecipients = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_publish_recipients",
			Help:    "Recipient count returned by Publish",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"channel"},
	)
)

// =============================================================================
// DISPATCH METRICS
// =============================================================================

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_dispatch_total",
			Help: "Total number of subscriber callback invocations",
		},
		[]string{"channel", "status"}, // status: ok, error (a recovered panic counts as error)
	)

	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_dispatch_duration_seconds",
			Help:    "Subscriber callback duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"channel"},
	)
)

// =============================================================================
// RPC METRICS
// =============================================================================

var (
	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_rpc_calls_total",
			Help: "Total number of Stub.Call/RPC invocations",
		},
		[]string{"channel", "outcome"}, // outcome: ok, timeout, remote_error, no_remote, error
	)

	rpcDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_rpc_duration_seconds",
			Help:    "Round-trip duration of an RPC call in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"channel"},
	)
)

// =============================================================================
// QUEUE METRICS
// =============================================================================

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbus_queue_depth",
			Help: "Last observed depth of a named queue",
		},
		[]string{"queue"},
	)
)

// PrometheusMetrics adapts the package's counters into the
// bus.DispatchMetrics contract so a Bus can be constructed with
// bus.WithMetrics(observability.NewPrometheusMetrics()).
type PrometheusMetrics struct{}

func NewPrometheusMetrics() *PrometheusMetrics { return &PrometheusMetrics{} }

func (m *PrometheusMetrics) ObserveDispatch(channel string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	dispatchTotal.WithLabelValues(channel, status).Inc()
	dispatchDurationSeconds.WithLabelValues(channel).Observe(seconds)
}

// ObservePublish records a Publish outcome. Bus.Publish calls it after
// every adapter publish; the dispatcher only observes the delivery
// side.
func ObservePublish(channel string, recipients *int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	publishTotal.WithLabelValues(channel, status).Inc()
	if recipients != nil {
		publishRecipients.WithLabelValues(channel).Observe(float64(*recipients))
	}
}

// ObserveRPC records an RPC outcome by Stub.Call/RPC callers.
func ObserveRPC(channel, outcome string, seconds float64) {
	rpcCallsTotal.WithLabelValues(channel, outcome).Inc()
	rpcDurationSeconds.WithLabelValues(channel).Observe(seconds)
}

// ObserveQueueDepth records a point-in-time queue depth sample.
func ObserveQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}
