/*
Package event defines flowgate's canonical in-memory representation of
the data flowing through a pipeline: Log, Metric, and Trace events built
out of a recursive Value type, plus the metadata (finalizers, API-key
reference, schema id) attached to every event from ingress to
acknowledgement.

Events are immutable from the outside in the sense that nothing in this
package mutates an Event handed to it by reference across a channel
send; transforms that need to change a value do so by constructing a new
Event or by calling a setter on an Event they exclusively own (see the
ownership invariant in SPEC_FULL.md §3).

Package layout:

  - value.go, path.go: the Value sum type and field-path resolution.
  - event.go: the Log/Metric/Trace tagged union and EventMetadata.
  - metric.go, histogram.go: metric kind arithmetic and the fixed
    power-of-two histogram bucketing scheme shared with pkg/metrics.
  - json.go: the RFC 3339 nanosecond / lexicographic-key JSON codec
    used for wire serialization. Batchers size events with
    Event.ByteSize, a structural estimate that does not encode JSON.
  - schema: a process-local registry mapping SchemaID to the source
    that produced it (informational; nothing in this module enforces
    schema conformance).
*/
package event
