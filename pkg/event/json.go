package event

import "encoding/json"

// TagMode selects how a metric's multi-valued tags project into JSON.
type TagMode int

const (
	// TagSingle emits each tag's last non-null value (or null).
	TagSingle TagMode = iota
	// TagFull emits each tag's full ordered value list as an array.
	TagFull
)

// valueToJSON converts v into a plain interface{} tree that
// encoding/json renders with RFC 3339 nanosecond timestamps and
// lexicographically sorted object keys (encoding/json sorts
// map[string]interface{} keys by default, which gives us the spec's
// reproducibility requirement for free).
func valueToJSON(v Value) interface{} {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBytes:
		b, _ := v.Bytes()
		return string(b)
	case KindInteger:
		i, _ := v.Integer()
		return i
	case KindFloat:
		f, _ := v.Float()
		return f
	case KindBoolean:
		b, _ := v.Boolean()
		return b
	case KindTimestamp:
		t, _ := v.Timestamp()
		return t.Format(RFC3339Nano)
	case KindArray:
		arr, _ := v.Array()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = valueToJSON(e)
		}
		return out
	case KindObject:
		obj, _ := v.Object()
		out := make(map[string]interface{}, obj.Len())
		for _, k := range obj.Keys() {
			val, _ := obj.Get(k)
			out[k] = valueToJSON(val)
		}
		return out
	default:
		return nil
	}
}

// EncodeValue marshals v to JSON per the spec's serialization rules.
func EncodeValue(v Value) ([]byte, error) {
	return json.Marshal(valueToJSON(v))
}

// EncodeEvent marshals e to JSON. Log and Trace events serialize as
// their field object; Metric events serialize as a name/namespace/tags/
// timestamp/kind envelope wrapping a single-keyed value object whose key
// names the MetricValueKind variant.
func EncodeEvent(e Event, tagMode TagMode) ([]byte, error) {
	switch e.Type() {
	case TypeLog, TypeTrace:
		fields, _ := e.Fields()
		return json.Marshal(valueToJSON(NewObject(fields)))
	case TypeMetric:
		m, _ := e.Metric()
		return encodeMetric(m, tagMode)
	default:
		return nil, nil
	}
}

func tagsToJSON(m *Metric, mode TagMode) map[string]interface{} {
	if len(m.Tags) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(m.Tags))
	switch mode {
	case TagFull:
		for _, t := range m.Tags {
			vals := make([]interface{}, len(t.Values))
			for i, v := range t.Values {
				if v == nil {
					vals[i] = nil
				} else {
					vals[i] = *v
				}
			}
			out[t.Key] = vals
		}
	default: // TagSingle
		for k, v := range m.ReduceTagsToSingle() {
			if v == nil {
				out[k] = nil
			} else {
				out[k] = *v
			}
		}
	}
	return out
}

func metricValueToJSON(mv MetricValue) map[string]interface{} {
	switch mv.Kind() {
	case ValueCounter, ValueGauge:
		scalar, _ := mv.Scalar()
		return map[string]interface{}{mv.Kind().String(): map[string]interface{}{"value": scalar}}
	case ValueSet:
		members, _ := mv.Set()
		return map[string]interface{}{"set": map[string]interface{}{"values": members}}
	case ValueDistribution:
		samples, statistic, _ := mv.Distribution()
		encSamples := make([]interface{}, len(samples))
		for i, s := range samples {
			encSamples[i] = map[string]interface{}{"value": s.Value, "rate": s.Rate}
		}
		stat := "histogram"
		if statistic == StatisticSummary {
			stat = "summary"
		}
		return map[string]interface{}{"distribution": map[string]interface{}{
			"samples": encSamples, "statistic": stat,
		}}
	case ValueAggregatedHistogram:
		buckets, count, sum, _ := mv.AggregatedHistogram()
		encBuckets := make([]interface{}, len(buckets))
		for i, b := range buckets {
			encBuckets[i] = map[string]interface{}{"upper_limit": b.UpperLimit, "count": b.Count}
		}
		return map[string]interface{}{"aggregated_histogram": map[string]interface{}{
			"buckets": encBuckets, "count": count, "sum": sum,
		}}
	case ValueAggregatedSummary:
		quantiles, count, sum, _ := mv.AggregatedSummary()
		encQuantiles := make([]interface{}, len(quantiles))
		for i, q := range quantiles {
			encQuantiles[i] = map[string]interface{}{"quantile": q.Quantile, "value": q.Value}
		}
		return map[string]interface{}{"aggregated_summary": map[string]interface{}{
			"quantiles": encQuantiles, "count": count, "sum": sum,
		}}
	default:
		return nil
	}
}

func encodeMetric(m *Metric, tagMode TagMode) ([]byte, error) {
	out := map[string]interface{}{
		"name":      m.Name,
		"timestamp": m.Timestamp.Format(RFC3339Nano),
		"kind":      m.Kind.String(),
	}
	if m.Namespace != "" {
		out["namespace"] = m.Namespace
	}
	if tags := tagsToJSON(m, tagMode); tags != nil {
		out["tags"] = tags
	}
	for k, v := range metricValueToJSON(m.Value) {
		out[k] = v
	}
	return json.Marshal(out)
}
