package event

import (
	"fmt"
	"sort"
	"time"
)

// MetricKind distinguishes whether a metric value replaces or merges with
// the previous value the sink (or an intervening aggregator) has seen for
// the same series.
type MetricKind uint8

const (
	Absolute MetricKind = iota
	Incremental
)

func (k MetricKind) String() string {
	if k == Absolute {
		return "absolute"
	}
	return "incremental"
}

// MetricValueKind discriminates the MetricValue tagged union.
type MetricValueKind uint8

const (
	ValueCounter MetricValueKind = iota
	ValueGauge
	ValueSet
	ValueDistribution
	ValueAggregatedHistogram
	ValueAggregatedSummary
)

func (k MetricValueKind) String() string {
	switch k {
	case ValueCounter:
		return "counter"
	case ValueGauge:
		return "gauge"
	case ValueSet:
		return "set"
	case ValueDistribution:
		return "distribution"
	case ValueAggregatedHistogram:
		return "aggregated_histogram"
	case ValueAggregatedSummary:
		return "aggregated_summary"
	default:
		return "unknown"
	}
}

// DistributionStatistic names how a Distribution's samples should be
// aggregated downstream.
type DistributionStatistic uint8

const (
	StatisticHistogram DistributionStatistic = iota
	StatisticSummary
)

// Sample is one observation inside a Distribution, with a sample rate
// (the number of real observations this one sample represents).
type Sample struct {
	Value float64
	Rate  uint32
}

// Bucket is one upper-bounded bucket of an AggregatedHistogram.
type Bucket struct {
	UpperLimit float64
	Count      uint64
}

// Quantile is one point of an AggregatedSummary.
type Quantile struct {
	Quantile float64
	Value    float64
}

// MetricValue is the tagged union of a metric's value, matching spec's
// Counter/Gauge/Set/Distribution/AggregatedHistogram/AggregatedSummary.
type MetricValue struct {
	kind       MetricValueKind
	scalar     float64 // Counter, Gauge
	set        []string
	samples    []Sample
	statistic  DistributionStatistic
	buckets    []Bucket
	quantiles  []Quantile
	count      uint64
	sum        float64
}

func NewCounter(v float64) MetricValue { return MetricValue{kind: ValueCounter, scalar: v} }
func NewGauge(v float64) MetricValue   { return MetricValue{kind: ValueGauge, scalar: v} }

// NewSet constructs a Set value; members are sorted and de-duplicated, per
// the spec's "sorted strings" requirement.
func NewSet(members []string) MetricValue {
	uniq := make(map[string]struct{}, len(members))
	for _, m := range members {
		uniq[m] = struct{}{}
	}
	out := make([]string, 0, len(uniq))
	for m := range uniq {
		out = append(out, m)
	}
	sort.Strings(out)
	return MetricValue{kind: ValueSet, set: out}
}

// NewDistribution constructs a Distribution value. Samples with rate 0
// are rejected, per the invariant that a sample rate of zero represents
// no observations at all.
func NewDistribution(samples []Sample, statistic DistributionStatistic) (MetricValue, error) {
	for _, s := range samples {
		if s.Rate == 0 {
			return MetricValue{}, fmt.Errorf("event: distribution sample with rate 0 is invalid")
		}
	}
	return MetricValue{kind: ValueDistribution, samples: samples, statistic: statistic}, nil
}

// NewAggregatedHistogram constructs an AggregatedHistogram value directly
// from precomputed buckets (used when ingesting already-aggregated
// metrics, as opposed to recording samples via Histogram in histogram.go).
func NewAggregatedHistogram(buckets []Bucket, count uint64, sum float64) MetricValue {
	return MetricValue{kind: ValueAggregatedHistogram, buckets: buckets, count: count, sum: sum}
}

func NewAggregatedSummary(quantiles []Quantile, count uint64, sum float64) MetricValue {
	return MetricValue{kind: ValueAggregatedSummary, quantiles: quantiles, count: count, sum: sum}
}

func (mv MetricValue) Kind() MetricValueKind { return mv.kind }

func (mv MetricValue) Scalar() (float64, bool) {
	if mv.kind != ValueCounter && mv.kind != ValueGauge {
		return 0, false
	}
	return mv.scalar, true
}

func (mv MetricValue) Set() ([]string, bool) {
	if mv.kind != ValueSet {
		return nil, false
	}
	return mv.set, true
}

func (mv MetricValue) Distribution() ([]Sample, DistributionStatistic, bool) {
	if mv.kind != ValueDistribution {
		return nil, 0, false
	}
	return mv.samples, mv.statistic, true
}

func (mv MetricValue) AggregatedHistogram() ([]Bucket, uint64, float64, bool) {
	if mv.kind != ValueAggregatedHistogram {
		return nil, 0, 0, false
	}
	return mv.buckets, mv.count, mv.sum, true
}

func (mv MetricValue) AggregatedSummary() ([]Quantile, uint64, float64, bool) {
	if mv.kind != ValueAggregatedSummary {
		return nil, 0, 0, false
	}
	return mv.quantiles, mv.count, mv.sum, true
}

func (mv MetricValue) clone() MetricValue {
	cp := mv
	cp.set = append([]string(nil), mv.set...)
	cp.samples = append([]Sample(nil), mv.samples...)
	cp.buckets = append([]Bucket(nil), mv.buckets...)
	cp.quantiles = append([]Quantile(nil), mv.quantiles...)
	return cp
}

// Tag holds the multi-valued, insertion-order-preserving values a single
// tag key maps to on a metric.
type Tag struct {
	Key    string
	Values []*string // nil element represents an explicit null value
}

// Metric is the payload of a Metric event: name, optional namespace,
// ordered tags, timestamp, kind, and value.
type Metric struct {
	Name      string
	Namespace string
	Tags      []Tag
	Timestamp time.Time
	Kind      MetricKind
	Value     MetricValue
}

// NewMetric constructs a Metric, forcing the timestamp to UTC.
func NewMetric(name string, kind MetricKind, value MetricValue, ts time.Time) *Metric {
	return &Metric{Name: name, Kind: kind, Value: value, Timestamp: ts.UTC()}
}

// tagIndex returns the index of the tag with the given key, or -1.
func (m *Metric) tagIndex(key string) int {
	for i := range m.Tags {
		if m.Tags[i].Key == key {
			return i
		}
	}
	return -1
}

// AddTagValue appends value (nil for an explicit null) to key's list,
// preserving insertion order across repeated calls with the same key.
func (m *Metric) AddTagValue(key string, value *string) {
	if i := m.tagIndex(key); i >= 0 {
		m.Tags[i].Values = append(m.Tags[i].Values, value)
		return
	}
	m.Tags = append(m.Tags, Tag{Key: key, Values: []*string{value}})
}

// TagValues returns the full ordered value list for key.
func (m *Metric) TagValues(key string) ([]*string, bool) {
	if i := m.tagIndex(key); i >= 0 {
		return m.Tags[i].Values, true
	}
	return nil, false
}

// ReduceTagsToSingle returns, for each tag key, its last non-null value
// (or nil if every value recorded was null), implementing the spec's
// "single" tag projection used for serialization.
func (m *Metric) ReduceTagsToSingle() map[string]*string {
	out := make(map[string]*string, len(m.Tags))
	for _, t := range m.Tags {
		var last *string
		for _, v := range t.Values {
			if v != nil {
				last = v
			}
		}
		out[t.Key] = last
	}
	return out
}

// Update merges other into m per the spec's Absolute/Incremental rule:
// Incremental + Incremental merges the values (commutatively, for use
// inside order-independent batch aggregation); Absolute on either side
// replaces m's value and kind with other's. Update requires both have
// the same MetricValueKind when merging Incrementals; callers must not
// mix value kinds for the same series.
func (m *Metric) Update(other *Metric) error {
	if other.Kind == Absolute || m.Kind == Absolute {
		m.Kind = other.Kind
		m.Value = other.Value.clone()
		m.Timestamp = other.Timestamp
		return nil
	}
	if m.Value.kind != other.Value.kind {
		return fmt.Errorf("event: cannot merge metric value kinds %s and %s", m.Value.kind, other.Value.kind)
	}
	switch m.Value.kind {
	case ValueCounter:
		m.Value.scalar += other.Value.scalar
	case ValueGauge:
		m.Value.scalar += other.Value.scalar
	case ValueSet:
		merged := append(append([]string(nil), m.Value.set...), other.Value.set...)
		m.Value = NewSet(merged)
	case ValueDistribution:
		m.Value.samples = append(append([]Sample(nil), m.Value.samples...), other.Value.samples...)
	case ValueAggregatedHistogram:
		m.Value = mergeHistograms(m.Value, other.Value)
	case ValueAggregatedSummary:
		return fmt.Errorf("event: aggregated summaries cannot be merged incrementally")
	default:
		return fmt.Errorf("event: unknown metric value kind %s", m.Value.kind)
	}
	if other.Timestamp.After(m.Timestamp) {
		m.Timestamp = other.Timestamp
	}
	return nil
}

// mergeHistograms adds bucket counts for buckets with matching upper
// limits; a bucket present on one side only passes through unchanged.
func mergeHistograms(a, b MetricValue) MetricValue {
	byLimit := make(map[float64]uint64, len(a.buckets))
	order := make([]float64, 0, len(a.buckets))
	for _, bk := range a.buckets {
		if _, ok := byLimit[bk.UpperLimit]; !ok {
			order = append(order, bk.UpperLimit)
		}
		byLimit[bk.UpperLimit] += bk.Count
	}
	for _, bk := range b.buckets {
		if _, ok := byLimit[bk.UpperLimit]; !ok {
			order = append(order, bk.UpperLimit)
		}
		byLimit[bk.UpperLimit] += bk.Count
	}
	sort.Float64s(order)
	merged := make([]Bucket, len(order))
	for i, limit := range order {
		merged[i] = Bucket{UpperLimit: limit, Count: byLimit[limit]}
	}
	return MetricValue{
		kind:    ValueAggregatedHistogram,
		buckets: merged,
		count:   a.count + b.count,
		sum:     a.sum + b.sum,
	}
}

// Clone deep-copies m.
func (m *Metric) Clone() *Metric {
	cp := &Metric{
		Name:      m.Name,
		Namespace: m.Namespace,
		Timestamp: m.Timestamp,
		Kind:      m.Kind,
		Value:     m.Value.clone(),
	}
	cp.Tags = make([]Tag, len(m.Tags))
	for i, t := range m.Tags {
		cp.Tags[i] = Tag{Key: t.Key, Values: append([]*string(nil), t.Values...)}
	}
	return cp
}

// ByteSize estimates the in-memory footprint of the metric.
func (m *Metric) ByteSize() int {
	size := len(m.Name) + len(m.Namespace) + 24
	for _, t := range m.Tags {
		size += len(t.Key)
		for _, v := range t.Values {
			if v != nil {
				size += len(*v)
			}
			size += 8
		}
	}
	switch m.Value.kind {
	case ValueSet:
		for _, s := range m.Value.set {
			size += len(s)
		}
	case ValueDistribution:
		size += len(m.Value.samples) * 16
	case ValueAggregatedHistogram:
		size += len(m.Value.buckets) * 16
	case ValueAggregatedSummary:
		size += len(m.Value.quantiles) * 16
	}
	return size
}
