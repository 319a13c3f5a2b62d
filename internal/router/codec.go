// Package router is the internal router-to-router reference
// integration: a gRPC source that accepts PushEvents calls and a gRPC
// sink that makes them, both built on pkg/transport. Unlike the
// display-oriented event.EncodeEvent, this package's wire codec is a
// lossless round trip — the event a receiving router decodes is
// indistinguishable from the one the sending router encoded, aside
// from carrying fresh finalizers local to the receiving process.
package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basinrelay/flowgate/pkg/event"
)

type wireEvent struct {
	Type   string      `json:"type"`
	Fields *wireValue  `json:"fields,omitempty"`
	Metric *wireMetric `json:"metric,omitempty"`
	Schema uint32      `json:"schema,omitempty"`
}

type wireValue struct {
	Kind   string       `json:"kind"`
	Bytes  []byte       `json:"bytes,omitempty"`
	Int    int64        `json:"int,omitempty"`
	Float  float64      `json:"float,omitempty"`
	Bool   bool         `json:"bool,omitempty"`
	Time   time.Time    `json:"time,omitempty"`
	Array  []*wireValue `json:"array,omitempty"`
	Object []wireField  `json:"object,omitempty"`
}

type wireField struct {
	Key   string     `json:"key"`
	Value *wireValue `json:"value"`
}

type wireTag struct {
	Key    string    `json:"key"`
	Values []*string `json:"values"`
}

type wireMetricValue struct {
	Kind      string           `json:"kind"`
	Scalar    float64          `json:"scalar,omitempty"`
	Set       []string         `json:"set,omitempty"`
	Samples   []event.Sample   `json:"samples,omitempty"`
	Statistic string           `json:"statistic,omitempty"`
	Buckets   []event.Bucket   `json:"buckets,omitempty"`
	Quantiles []event.Quantile `json:"quantiles,omitempty"`
	Count     uint64           `json:"count,omitempty"`
	Sum       float64          `json:"sum,omitempty"`
}

type wireMetric struct {
	Name      string          `json:"name"`
	Namespace string          `json:"namespace,omitempty"`
	Tags      []wireTag       `json:"tags,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Value     wireMetricValue `json:"value"`
}

// encodeBatch serializes events as newline-delimited wireEvent JSON.
// Finalizers are never encoded: acknowledgement for a forwarded batch
// is resolved locally by the sink's Dispatcher from the PushEvents
// response, not by round-tripping per-event status across the wire.
func encodeBatch(events []event.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		we, err := toWireEvent(e)
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(we); err != nil {
			return nil, fmt.Errorf("router: encoding event: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeBatch parses a payload produced by encodeBatch back into
// Events carrying fresh, unset metadata; the caller attaches
// finalizers before admitting them onto a local buffer edge.
func decodeBatch(payload []byte) ([]event.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	var out []event.Event
	for dec.More() {
		var we wireEvent
		if err := dec.Decode(&we); err != nil {
			return nil, fmt.Errorf("router: decoding event: %w", err)
		}
		e, err := fromWireEvent(we)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toWireEvent(e event.Event) (wireEvent, error) {
	we := wireEvent{Schema: e.Metadata().SchemaID}
	switch e.Type() {
	case event.TypeLog:
		we.Type = "log"
	case event.TypeTrace:
		we.Type = "trace"
	case event.TypeMetric:
		we.Type = "metric"
	default:
		return wireEvent{}, fmt.Errorf("router: unknown event type %v", e.Type())
	}

	if we.Type == "metric" {
		m, _ := e.Metric()
		wm, err := toWireMetric(m)
		if err != nil {
			return wireEvent{}, err
		}
		we.Metric = &wm
		return we, nil
	}

	fields, _ := e.Fields()
	wv := toWireValue(event.NewObject(fields))
	we.Fields = &wv
	return we, nil
}

func fromWireEvent(we wireEvent) (event.Event, error) {
	meta := event.EventMetadata{SchemaID: we.Schema}
	switch we.Type {
	case "log", "trace":
		if we.Fields == nil {
			return event.Event{}, fmt.Errorf("router: %s event missing fields", we.Type)
		}
		v, err := fromWireValue(we.Fields)
		if err != nil {
			return event.Event{}, err
		}
		obj, ok := v.Object()
		if !ok {
			return event.Event{}, fmt.Errorf("router: %s event fields did not decode to an object", we.Type)
		}
		if we.Type == "trace" {
			return event.NewTrace(obj, meta), nil
		}
		return event.NewLog(obj, meta), nil
	case "metric":
		if we.Metric == nil {
			return event.Event{}, fmt.Errorf("router: metric event missing metric payload")
		}
		m, err := fromWireMetric(*we.Metric)
		if err != nil {
			return event.Event{}, err
		}
		return event.NewMetricEvent(m, meta), nil
	default:
		return event.Event{}, fmt.Errorf("router: unknown wire event type %q", we.Type)
	}
}

func toWireValue(v event.Value) wireValue {
	switch v.Kind() {
	case event.KindNull:
		return wireValue{Kind: "null"}
	case event.KindBytes:
		b, _ := v.Bytes()
		return wireValue{Kind: "bytes", Bytes: b}
	case event.KindInteger:
		i, _ := v.Integer()
		return wireValue{Kind: "integer", Int: i}
	case event.KindFloat:
		f, _ := v.Float()
		return wireValue{Kind: "float", Float: f}
	case event.KindBoolean:
		b, _ := v.Boolean()
		return wireValue{Kind: "boolean", Bool: b}
	case event.KindTimestamp:
		ts, _ := v.Timestamp()
		return wireValue{Kind: "timestamp", Time: ts}
	case event.KindArray:
		arr, _ := v.Array()
		out := make([]*wireValue, len(arr))
		for i, elem := range arr {
			wv := toWireValue(elem)
			out[i] = &wv
		}
		return wireValue{Kind: "array", Array: out}
	case event.KindObject:
		obj, _ := v.Object()
		fields := make([]wireField, 0, obj.Len())
		for _, k := range obj.Keys() {
			fv, _ := obj.Get(k)
			wv := toWireValue(fv)
			fields = append(fields, wireField{Key: k, Value: &wv})
		}
		return wireValue{Kind: "object", Object: fields}
	default:
		return wireValue{Kind: "null"}
	}
}

func fromWireValue(wv *wireValue) (event.Value, error) {
	if wv == nil {
		return event.Null(), nil
	}
	switch wv.Kind {
	case "null", "":
		return event.Null(), nil
	case "bytes":
		return event.NewBytes(wv.Bytes), nil
	case "integer":
		return event.NewInteger(wv.Int), nil
	case "float":
		return event.NewFloatChecked(wv.Float)
	case "boolean":
		return event.NewBoolean(wv.Bool), nil
	case "timestamp":
		return event.NewTimestamp(wv.Time), nil
	case "array":
		out := make([]event.Value, len(wv.Array))
		for i, elem := range wv.Array {
			v, err := fromWireValue(elem)
			if err != nil {
				return event.Value{}, err
			}
			out[i] = v
		}
		return event.NewArray(out), nil
	case "object":
		obj := event.NewObjectMap()
		for _, f := range wv.Object {
			v, err := fromWireValue(f.Value)
			if err != nil {
				return event.Value{}, err
			}
			obj.Set(f.Key, v)
		}
		return event.NewObject(obj), nil
	default:
		return event.Value{}, fmt.Errorf("router: unknown wire value kind %q", wv.Kind)
	}
}

func toWireMetric(m *event.Metric) (wireMetric, error) {
	tags := make([]wireTag, len(m.Tags))
	for i, t := range m.Tags {
		tags[i] = wireTag{Key: t.Key, Values: t.Values}
	}

	wmv, err := toWireMetricValue(m.Value)
	if err != nil {
		return wireMetric{}, err
	}

	kind := "absolute"
	if m.Kind == event.Incremental {
		kind = "incremental"
	}

	return wireMetric{
		Name:      m.Name,
		Namespace: m.Namespace,
		Tags:      tags,
		Timestamp: m.Timestamp,
		Kind:      kind,
		Value:     wmv,
	}, nil
}

func fromWireMetric(wm wireMetric) (*event.Metric, error) {
	value, err := fromWireMetricValue(wm.Value)
	if err != nil {
		return nil, err
	}

	kind := event.Absolute
	if wm.Kind == "incremental" {
		kind = event.Incremental
	}

	m := event.NewMetric(wm.Name, kind, value, wm.Timestamp)
	m.Namespace = wm.Namespace
	for _, t := range wm.Tags {
		for _, v := range t.Values {
			m.AddTagValue(t.Key, v)
		}
	}
	return m, nil
}

func toWireMetricValue(mv event.MetricValue) (wireMetricValue, error) {
	switch mv.Kind() {
	case event.ValueCounter:
		scalar, _ := mv.Scalar()
		return wireMetricValue{Kind: "counter", Scalar: scalar}, nil
	case event.ValueGauge:
		scalar, _ := mv.Scalar()
		return wireMetricValue{Kind: "gauge", Scalar: scalar}, nil
	case event.ValueSet:
		members, _ := mv.Set()
		return wireMetricValue{Kind: "set", Set: members}, nil
	case event.ValueDistribution:
		samples, statistic, _ := mv.Distribution()
		stat := "histogram"
		if statistic == event.StatisticSummary {
			stat = "summary"
		}
		return wireMetricValue{Kind: "distribution", Samples: samples, Statistic: stat}, nil
	case event.ValueAggregatedHistogram:
		buckets, count, sum, _ := mv.AggregatedHistogram()
		return wireMetricValue{Kind: "aggregated_histogram", Buckets: buckets, Count: count, Sum: sum}, nil
	case event.ValueAggregatedSummary:
		quantiles, count, sum, _ := mv.AggregatedSummary()
		return wireMetricValue{Kind: "aggregated_summary", Quantiles: quantiles, Count: count, Sum: sum}, nil
	default:
		return wireMetricValue{}, fmt.Errorf("router: unknown metric value kind %v", mv.Kind())
	}
}

func fromWireMetricValue(wmv wireMetricValue) (event.MetricValue, error) {
	switch wmv.Kind {
	case "counter":
		return event.NewCounter(wmv.Scalar), nil
	case "gauge":
		return event.NewGauge(wmv.Scalar), nil
	case "set":
		return event.NewSet(wmv.Set), nil
	case "distribution":
		statistic := event.StatisticHistogram
		if wmv.Statistic == "summary" {
			statistic = event.StatisticSummary
		}
		return event.NewDistribution(wmv.Samples, statistic)
	case "aggregated_histogram":
		return event.NewAggregatedHistogram(wmv.Buckets, wmv.Count, wmv.Sum), nil
	case "aggregated_summary":
		return event.NewAggregatedSummary(wmv.Quantiles, wmv.Count, wmv.Sum), nil
	default:
		return event.MetricValue{}, fmt.Errorf("router: unknown wire metric value kind %q", wmv.Kind)
	}
}
