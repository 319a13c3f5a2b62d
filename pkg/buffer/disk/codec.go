package disk

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basinrelay/flowgate/pkg/event"
)

// This codec is the disk buffer's own on-disk record format. It is
// deliberately independent of pkg/event's RFC-3339/lexicographic-key
// JSON codec (used for outbound wire serialization, e.g. a console or
// HTTP sink): this one only needs lossless round-tripping back into the
// exact event.Value/event.Metric shape that was written, across a
// process restart, not a reproducible external representation.

type wireValue struct {
	K  string      `json:"k"`
	S  string      `json:"s,omitempty"`
	I  int64       `json:"i,omitempty"`
	F  float64     `json:"f,omitempty"`
	Bo bool        `json:"bo,omitempty"`
	T  string      `json:"t,omitempty"`
	A  []wireValue `json:"a,omitempty"`
	O  []wireField `json:"o,omitempty"`
}

type wireField struct {
	Key   string    `json:"key"`
	Value wireValue `json:"value"`
}

func valueToWire(v event.Value) wireValue {
	switch v.Kind() {
	case event.KindNull:
		return wireValue{K: "null"}
	case event.KindBytes:
		b, _ := v.Bytes()
		return wireValue{K: "bytes", S: base64.StdEncoding.EncodeToString(b)}
	case event.KindInteger:
		i, _ := v.Integer()
		return wireValue{K: "integer", I: i}
	case event.KindFloat:
		f, _ := v.Float()
		return wireValue{K: "float", F: f}
	case event.KindBoolean:
		b, _ := v.Boolean()
		return wireValue{K: "boolean", Bo: b}
	case event.KindTimestamp:
		t, _ := v.Timestamp()
		return wireValue{K: "timestamp", T: t.Format(event.RFC3339Nano)}
	case event.KindArray:
		arr, _ := v.Array()
		out := make([]wireValue, len(arr))
		for i, e := range arr {
			out[i] = valueToWire(e)
		}
		return wireValue{K: "array", A: out}
	case event.KindObject:
		obj, _ := v.Object()
		fields := make([]wireField, 0, obj.Len())
		for _, k := range obj.Keys() {
			val, _ := obj.Get(k)
			fields = append(fields, wireField{Key: k, Value: valueToWire(val)})
		}
		return wireValue{K: "object", O: fields}
	default:
		return wireValue{K: "null"}
	}
}

func wireToValue(w wireValue) (event.Value, error) {
	switch w.K {
	case "null":
		return event.Null(), nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(w.S)
		if err != nil {
			return event.Value{}, fmt.Errorf("disk: decode bytes value: %w", err)
		}
		return event.NewBytes(b), nil
	case "integer":
		return event.NewInteger(w.I), nil
	case "float":
		return event.NewFloat(w.F), nil
	case "boolean":
		return event.NewBoolean(w.Bo), nil
	case "timestamp":
		t, err := time.Parse(event.RFC3339Nano, w.T)
		if err != nil {
			return event.Value{}, fmt.Errorf("disk: decode timestamp value %q: %w", w.T, err)
		}
		return event.NewTimestamp(t), nil
	case "array":
		out := make([]event.Value, len(w.A))
		for i, wv := range w.A {
			v, err := wireToValue(wv)
			if err != nil {
				return event.Value{}, err
			}
			out[i] = v
		}
		return event.NewArray(out), nil
	case "object":
		obj := event.NewObjectMap()
		for _, f := range w.O {
			v, err := wireToValue(f.Value)
			if err != nil {
				return event.Value{}, err
			}
			obj.Set(f.Key, v)
		}
		return event.NewObject(obj), nil
	default:
		return event.Value{}, fmt.Errorf("disk: unknown value kind %q", w.K)
	}
}

type wireTag struct {
	Key    string    `json:"key"`
	Values []*string `json:"values"`
}

type wireSample struct {
	Value float64 `json:"value"`
	Rate  uint32  `json:"rate"`
}

type wireBucket struct {
	UpperLimit float64 `json:"upper_limit"`
	Count      uint64  `json:"count"`
}

type wireQuantile struct {
	Quantile float64 `json:"quantile"`
	Value    float64 `json:"value"`
}

type wireMetric struct {
	Name      string         `json:"name"`
	Namespace string         `json:"namespace,omitempty"`
	Tags      []wireTag      `json:"tags,omitempty"`
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"`
	ValueKind string         `json:"value_kind"`
	Scalar    float64        `json:"scalar,omitempty"`
	Set       []string       `json:"set,omitempty"`
	Samples   []wireSample   `json:"samples,omitempty"`
	Statistic string         `json:"statistic,omitempty"`
	Buckets   []wireBucket   `json:"buckets,omitempty"`
	Quantiles []wireQuantile `json:"quantiles,omitempty"`
	Count     uint64         `json:"count,omitempty"`
	Sum       float64        `json:"sum,omitempty"`
}

func metricToWire(m *event.Metric) wireMetric {
	w := wireMetric{
		Name:      m.Name,
		Namespace: m.Namespace,
		Timestamp: m.Timestamp.Format(event.RFC3339Nano),
		Kind:      m.Kind.String(),
		ValueKind: m.Value.Kind().String(),
	}
	for _, t := range m.Tags {
		w.Tags = append(w.Tags, wireTag{Key: t.Key, Values: t.Values})
	}
	switch m.Value.Kind() {
	case event.ValueCounter, event.ValueGauge:
		w.Scalar, _ = m.Value.Scalar()
	case event.ValueSet:
		w.Set, _ = m.Value.Set()
	case event.ValueDistribution:
		samples, statistic, _ := m.Value.Distribution()
		for _, s := range samples {
			w.Samples = append(w.Samples, wireSample{Value: s.Value, Rate: s.Rate})
		}
		if statistic == event.StatisticSummary {
			w.Statistic = "summary"
		} else {
			w.Statistic = "histogram"
		}
	case event.ValueAggregatedHistogram:
		buckets, count, sum, _ := m.Value.AggregatedHistogram()
		for _, b := range buckets {
			w.Buckets = append(w.Buckets, wireBucket{UpperLimit: b.UpperLimit, Count: b.Count})
		}
		w.Count, w.Sum = count, sum
	case event.ValueAggregatedSummary:
		quantiles, count, sum, _ := m.Value.AggregatedSummary()
		for _, q := range quantiles {
			w.Quantiles = append(w.Quantiles, wireQuantile{Quantile: q.Quantile, Value: q.Value})
		}
		w.Count, w.Sum = count, sum
	}
	return w
}

func wireToMetric(w wireMetric) (*event.Metric, error) {
	ts, err := time.Parse(event.RFC3339Nano, w.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("disk: decode metric timestamp %q: %w", w.Timestamp, err)
	}
	kind := event.Absolute
	if w.Kind == "incremental" {
		kind = event.Incremental
	}

	var value event.MetricValue
	switch w.ValueKind {
	case "counter":
		value = event.NewCounter(w.Scalar)
	case "gauge":
		value = event.NewGauge(w.Scalar)
	case "set":
		value = event.NewSet(w.Set)
	case "distribution":
		samples := make([]event.Sample, len(w.Samples))
		for i, s := range w.Samples {
			samples[i] = event.Sample{Value: s.Value, Rate: s.Rate}
		}
		statistic := event.StatisticHistogram
		if w.Statistic == "summary" {
			statistic = event.StatisticSummary
		}
		value, err = event.NewDistribution(samples, statistic)
		if err != nil {
			return nil, fmt.Errorf("disk: decode distribution: %w", err)
		}
	case "aggregated_histogram":
		buckets := make([]event.Bucket, len(w.Buckets))
		for i, b := range w.Buckets {
			buckets[i] = event.Bucket{UpperLimit: b.UpperLimit, Count: b.Count}
		}
		value = event.NewAggregatedHistogram(buckets, w.Count, w.Sum)
	case "aggregated_summary":
		quantiles := make([]event.Quantile, len(w.Quantiles))
		for i, q := range w.Quantiles {
			quantiles[i] = event.Quantile{Quantile: q.Quantile, Value: q.Value}
		}
		value = event.NewAggregatedSummary(quantiles, w.Count, w.Sum)
	default:
		return nil, fmt.Errorf("disk: unknown metric value kind %q", w.ValueKind)
	}

	m := event.NewMetric(w.Name, kind, value, ts)
	m.Namespace = w.Namespace
	for _, t := range w.Tags {
		for _, v := range t.Values {
			m.AddTagValue(t.Key, v)
		}
	}
	return m, nil
}

type wireEnvelope struct {
	Type        string      `json:"type"`
	SchemaID    uint32      `json:"schema_id,omitempty"`
	APIKeyID    string      `json:"api_key_id,omitempty"`
	APIKeyToken string      `json:"api_key_token,omitempty"`
	Fields      *wireValue  `json:"fields,omitempty"`
	Metric      *wireMetric `json:"metric,omitempty"`
}

// encodeEvent serializes e's data and metadata (minus its Finalizers,
// which are process-local runtime state, not persisted) into the
// record payload written to a data file.
func encodeEvent(e event.Event) ([]byte, error) {
	meta := e.Metadata()
	env := wireEnvelope{SchemaID: meta.SchemaID}
	if meta.APIKey != nil {
		env.APIKeyID, env.APIKeyToken = meta.APIKey.ID, meta.APIKey.Token
	}
	switch e.Type() {
	case event.TypeLog, event.TypeTrace:
		if e.Type() == event.TypeLog {
			env.Type = "log"
		} else {
			env.Type = "trace"
		}
		fields, _ := e.Fields()
		wv := valueToWire(event.NewObject(fields))
		env.Fields = &wv
	case event.TypeMetric:
		env.Type = "metric"
		m, _ := e.Metric()
		wm := metricToWire(m)
		env.Metric = &wm
	default:
		return nil, fmt.Errorf("disk: cannot encode event of unknown type")
	}
	return json.Marshal(env)
}

// decodeEvent reconstructs an Event from a record payload. The returned
// event carries no Finalizers; the caller (buffer.go) reattaches one
// from its in-memory pending table when the write and the read happen
// within the same process lifetime, or leaves it empty after a crash,
// since the original finalizer chain cannot survive a process restart.
func decodeEvent(payload []byte) (event.Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return event.Event{}, fmt.Errorf("disk: decode record envelope: %w", err)
	}
	meta := event.EventMetadata{SchemaID: env.SchemaID}
	if env.APIKeyID != "" {
		meta.APIKey = &event.APIKey{ID: env.APIKeyID, Token: env.APIKeyToken}
	}
	switch env.Type {
	case "log", "trace":
		if env.Fields == nil {
			return event.Event{}, fmt.Errorf("disk: %s record missing fields", env.Type)
		}
		v, err := wireToValue(*env.Fields)
		if err != nil {
			return event.Event{}, err
		}
		obj, _ := v.Object()
		if env.Type == "log" {
			return event.NewLog(obj, meta), nil
		}
		return event.NewTrace(obj, meta), nil
	case "metric":
		if env.Metric == nil {
			return event.Event{}, fmt.Errorf("disk: metric record missing metric")
		}
		m, err := wireToMetric(*env.Metric)
		if err != nil {
			return event.Event{}, err
		}
		return event.NewMetricEvent(m, meta), nil
	default:
		return event.Event{}, fmt.Errorf("disk: unknown record type %q", env.Type)
	}
}
