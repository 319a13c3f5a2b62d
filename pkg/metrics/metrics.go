package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/basinrelay/flowgate/pkg/event"
)

// histogramBuckets mirrors pkg/event's fixed power-of-two scheme (2⁻⁶
// through 2¹²) so a Prometheus-scraped histogram lines up with the
// same bucketing the wire-format AggregatedHistogram value uses.
func histogramBuckets() []float64 {
	bounds := event.HistogramBucketBounds()
	out := make([]float64, 0, len(bounds)-1)
	for _, b := range bounds[:len(bounds)-1] {
		out = append(out, b)
	}
	return out
}

var (
	// QueueDepth is the number of events currently buffered on one
	// edge, labeled by the "from->to" edge identifier topology.Edge
	// produces.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowgate_edge_queue_depth",
			Help: "Events currently buffered on an edge",
		},
		[]string{"edge"},
	)

	BufferBytesUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowgate_edge_buffer_bytes",
			Help: "Bytes currently held by an edge's buffer backend",
		},
		[]string{"edge"},
	)

	BatchEventCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowgate_batch_events",
			Help:    "Number of events per emitted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	BatchBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowgate_batch_bytes",
			Help:    "Encoded, pre-compression size of an emitted batch in bytes",
			Buckets: histogramBuckets(),
		},
	)

	// DispatchAttemptsTotal counts attempts by sink and outcome. Its
	// only writer is pkg/transport's server interceptor, which records
	// the RPC method name as sink and "success" or "error" as outcome;
	// pkg/pipeline's Dispatcher does not record its attempts here.
	DispatchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgate_dispatch_attempts_total",
			Help: "Total sink dispatch attempts by outcome",
		},
		[]string{"sink", "outcome"},
	)

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowgate_dispatch_latency_seconds",
			Help:    "Sink request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	ConcurrencyInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowgate_dispatch_concurrency_in_flight",
			Help: "Current in-flight request count per sink dispatcher",
		},
		[]string{"sink"},
	)

	// ComponentErrorsTotal tags every surfaced error with the pipeline
	// stage it occurred in and a stable error_type, per the error
	// taxonomy: stage ∈ {receiving, processing, sending}.
	ComponentErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgate_component_errors_total",
			Help: "Total surfaced errors by pipeline stage and error type",
		},
		[]string{"stage", "error_type"},
	)

	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgate_topology_reloads_total",
			Help: "Total topology reloads by result",
		},
		[]string{"result"},
	)

	ComponentCrashesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgate_component_crashes_total",
			Help: "Total component crash reports by severity",
		},
		[]string{"node", "severity"},
	)

	// CoordinatorIsLeader is 1 on the router that currently holds raft
	// leadership for the coordinator group, 0 otherwise.
	CoordinatorIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowgate_coordinator_is_leader",
			Help: "1 if this router is the coordinator raft leader, 0 otherwise",
		},
	)

	CoordinatorLeadershipChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flowgate_coordinator_leadership_changes_total",
			Help: "Total raft leadership transitions observed by this router",
		},
	)
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		BufferBytesUsed,
		BatchEventCount,
		BatchBytes,
		DispatchAttemptsTotal,
		DispatchLatency,
		ConcurrencyInFlight,
		ComponentErrorsTotal,
		ReloadsTotal,
		ComponentCrashesTotal,
		CoordinatorIsLeader,
		CoordinatorLeadershipChangesTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the process-global
// metrics registered via MustRegister/init.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
