/*
Package metrics provides flowgate's two layers of observability: a
fixed set of Prometheus gauges/counters/histograms for pipeline-wide
resource state (edge queue depth, buffer bytes, batch sizes, dispatch
outcomes, reload results), and a dynamic Registry for the ad hoc typed
events individual components emit under their own tag sets
(EventsReceived, BytesSent, EndpointBytesReceived, and per-stage
errors).

# Fixed metrics

metrics.go declares package-level gauges, counters, and histograms
registered once at init() against the process-global Prometheus
registerer, mirroring how every fixed metric in this codebase is
declared: a package var plus a single MustRegister call, no runtime
registration required by callers.

	metrics.QueueDepth.WithLabelValues("source->sink").Set(42)
	metrics.DispatchAttemptsTotal.WithLabelValues("elastic-sink", "success").Inc()

	timer := metrics.NewTimer()
	// ... dispatch a batch ...
	timer.ObserveDurationVec(metrics.DispatchLatency, "elastic-sink")

BatchBytes and Registry histograms use flowgate's power-of-two bucket
scheme (shared with pkg/event's AggregatedHistogram encoding), so a
scraped histogram and a wire-encoded one agree on bucket boundaries.
BatchEventCount uses its own power-of-two buckets from 1 to 8192.

# Dynamic registry

registry.go's Registry answers components that don't know their tag
set in advance — a sink's BytesSent is tagged by whatever protocol and
endpoint it was configured with, not a fixed label schema flowgate's
core can declare upfront:

	metrics.Default.EventsReceived("generator-source", "receiving", 100, 8192)
	metrics.Default.BytesSent("http", "collector.example.com:443", 40960)

Each distinct (name, tag-set) pair the registry has ever seen counts
toward its cardinality gauge. Tests construct their own instance via
NewRegistry() rather than sharing Default, so concurrent test runs
never collide on Prometheus's duplicate-registration panic.

# Health and readiness

health.go tracks named component health independent of Prometheus,
exposed over three HTTP handlers (HealthHandler, ReadyHandler,
LivenessHandler) consumed by an orchestrator's liveness/readiness
probes. Readiness additionally requires the coordinator, topology, and
transport components to all report healthy before returning 200.

# Collector

collector.go polls a StatsSource (pkg/topology.Topology satisfies it)
on an interval and republishes its edge occupancy into QueueDepth and
BufferBytesUsed, the same ticker-plus-stopCh shape used throughout this
codebase for periodic background work.
*/
package metrics
