package event

import (
	"time"

	"github.com/basinrelay/flowgate/pkg/finalize"
)

// Type discriminates the Event tagged union.
type Type uint8

const (
	TypeLog Type = iota
	TypeMetric
	TypeTrace
)

func (t Type) String() string {
	switch t {
	case TypeLog:
		return "log"
	case TypeMetric:
		return "metric"
	case TypeTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// APIKey is an opaque credential reference attached by a source and read
// read-only thereafter. Cloning an Event's metadata copies the pointer,
// never the struct, so the key itself is never duplicated.
type APIKey struct {
	ID    string
	Token string
}

// EventMetadata travels with every Event from ingress to acknowledgement.
type EventMetadata struct {
	Finalizers finalize.EventFinalizers
	APIKey     *APIKey
	SchemaID   uint32
}

// Clone duplicates the finalizer list (so each copy must independently
// reach a terminal status) but shares the APIKey pointer and SchemaID.
func (m EventMetadata) Clone() EventMetadata {
	return EventMetadata{
		Finalizers: m.Finalizers.Clone(),
		APIKey:     m.APIKey,
		SchemaID:   m.SchemaID,
	}
}

// Event is flowgate's tagged union of Log, Metric, and Trace records. Like
// Value it is a plain struct rather than an interface; only the field
// matching Type is meaningful.
type Event struct {
	typ      Type
	fields   *Object // Log, Trace
	metric   *Metric // Metric
	metadata EventMetadata
}

// NewLog wraps fields as a Log event.
func NewLog(fields *Object, meta EventMetadata) Event {
	if fields == nil {
		fields = NewObjectMap()
	}
	return Event{typ: TypeLog, fields: fields, metadata: meta}
}

// NewTrace wraps fields as a Trace event; shape-identical to Log, tagged
// separately.
func NewTrace(fields *Object, meta EventMetadata) Event {
	if fields == nil {
		fields = NewObjectMap()
	}
	return Event{typ: TypeTrace, fields: fields, metadata: meta}
}

// NewMetricEvent wraps m as a Metric event.
func NewMetricEvent(m *Metric, meta EventMetadata) Event {
	return Event{typ: TypeMetric, metric: m, metadata: meta}
}

func (e Event) Type() Type                 { return e.typ }
func (e Event) Metadata() EventMetadata     { return e.metadata }
func (e *Event) SetMetadata(m EventMetadata) { e.metadata = m }

// Fields returns the field map for a Log or Trace event.
func (e Event) Fields() (*Object, bool) {
	if e.typ != TypeLog && e.typ != TypeTrace {
		return nil, false
	}
	return e.fields, true
}

// Metric returns the Metric payload for a Metric event.
func (e Event) Metric() (*Metric, bool) {
	if e.typ != TypeMetric {
		return nil, false
	}
	return e.metric, true
}

// Get resolves path against a Log/Trace event's fields.
func (e Event) Get(path Path) (Value, bool) {
	fields, ok := e.Fields()
	if !ok {
		return Value{}, false
	}
	return Get(NewObject(fields), path)
}

// Insert resolves path against a Log/Trace event's fields, creating
// intermediate structure as needed.
func (e *Event) Insert(path Path, v Value) error {
	fields, ok := e.Fields()
	if !ok {
		return nil
	}
	newRoot, err := Insert(NewObject(fields), path, v)
	if err != nil {
		return err
	}
	obj, _ := newRoot.Object()
	e.fields = obj
	return nil
}

// Remove deletes whatever path resolves to on a Log/Trace event.
func (e *Event) Remove(path Path) bool {
	fields, ok := e.Fields()
	if !ok {
		return false
	}
	newRoot, removed := Remove(NewObject(fields), path)
	if removed {
		obj, _ := newRoot.Object()
		e.fields = obj
	}
	return removed
}

// Clone deep-copies the event's payload and duplicates its finalizer
// list, per the fan-out invariant: when a transform emits N events from
// one, each clone's finalizers must independently reach a terminal
// status before the upstream batch is considered done.
func (e Event) Clone() Event {
	cp := Event{typ: e.typ, metadata: e.metadata.Clone()}
	switch e.typ {
	case TypeLog, TypeTrace:
		cp.fields = e.fields.Clone()
	case TypeMetric:
		cp.metric = e.metric.Clone()
	}
	return cp
}

// ByteSize estimates the in-memory footprint of the event's payload,
// used by batchers to enforce max_bytes.
func (e Event) ByteSize() int {
	switch e.typ {
	case TypeLog, TypeTrace:
		return e.fields.ByteSize()
	case TypeMetric:
		return e.metric.ByteSize()
	default:
		return 0
	}
}

// now returns the current time in UTC.
func now() time.Time { return time.Now().UTC() }
