package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Tags identifies one timeseries within a named metric. Keys are
// compared case-sensitively and reduced to a stable, sorted order
// before being used as a cardinality key or a Prometheus label set.
type Tags map[string]string

func (t Tags) sortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Tags) values(keys []string) []string {
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = t[k]
	}
	return vals
}

// comboKey renders name plus its sorted tag set into a single string
// suitable as a cardinality-tracking set key.
func comboKey(name string, keys []string, tags Tags) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
	}
	return b.String()
}

// Registry is a named counters/gauges/histograms registry keyed by
// (name, sorted-tag-set), for components that emit ad hoc typed events
// (EventsReceived, BytesSent, EndpointBytesReceived, and the like)
// whose tag sets vary per component rather than fitting one of
// metrics.go's fixed label schemas. A metric name's label keys are
// fixed by whichever call first names it; later calls with a
// different tag key set for the same name are a caller bug, not
// something the registry tries to reconcile.
//
// The registry is ordinarily process-global (Default), but NewRegistry
// also supports an isolated, unregistered instance for tests.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
	seen       map[string]struct{}

	cardinality prometheus.Gauge
}

// NewRegistry returns an empty Registry backed by its own
// prometheus.Registry instance, isolated from the process-global
// Default (and so safe to construct repeatedly in tests without
// duplicate-registration panics).
func NewRegistry() *Registry {
	r := &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelKeys:  make(map[string][]string),
		seen:       make(map[string]struct{}),
		cardinality: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowgate_metrics_cardinality",
			Help: "Number of distinct (name, tag-set) pairs recorded in this registry",
		}),
	}
	r.reg.MustRegister(r.cardinality)
	return r
}

// Default is the process-global Registry used by components that
// don't hold their own.
var Default = NewRegistry()

// Gatherer exposes the registry's underlying prometheus.Registry for
// an HTTP handler to scrape.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) track(name string, keys []string, tags Tags) {
	key := comboKey(name, keys, tags)
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.cardinality.Inc()
}

// Counter returns the counter for (name, tags), registering the
// metric on first use.
func (r *Registry) Counter(name, help string, tags Tags) prometheus.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec, ok := r.counters[name]
	if !ok {
		keys := tags.sortedKeys()
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, keys)
		r.reg.MustRegister(vec)
		r.counters[name] = vec
		r.labelKeys[name] = keys
	}
	keys := r.labelKeys[name]
	r.track(name, keys, tags)
	return vec.WithLabelValues(tags.values(keys)...)
}

// Gauge returns the gauge for (name, tags), registering the metric on
// first use.
func (r *Registry) Gauge(name, help string, tags Tags) prometheus.Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec, ok := r.gauges[name]
	if !ok {
		keys := tags.sortedKeys()
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, keys)
		r.reg.MustRegister(vec)
		r.gauges[name] = vec
		r.labelKeys[name] = keys
	}
	keys := r.labelKeys[name]
	r.track(name, keys, tags)
	return vec.WithLabelValues(tags.values(keys)...)
}

// Histogram returns the histogram for (name, tags), using flowgate's
// power-of-two bucket scheme and registering the metric on first use.
func (r *Registry) Histogram(name, help string, tags Tags) prometheus.Observer {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec, ok := r.histograms[name]
	if !ok {
		keys := tags.sortedKeys()
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: histogramBuckets()}, keys)
		r.reg.MustRegister(vec)
		r.histograms[name] = vec
		r.labelKeys[name] = keys
	}
	keys := r.labelKeys[name]
	r.track(name, keys, tags)
	return vec.WithLabelValues(tags.values(keys)...)
}

// Cardinality returns the number of distinct (name, tag-set) pairs
// recorded so far.
func (r *Registry) Cardinality() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// EventsReceived records one component's EventsReceived{count, byte_size}
// observation, tagged by component and stage.
func (r *Registry) EventsReceived(component, stage string, count int, byteSize int64) {
	tags := Tags{"component": component, "stage": stage}
	r.Counter("flowgate_events_received_total", "Total events received by component and stage", tags).Add(float64(count))
	r.Counter("flowgate_bytes_received_total", "Total bytes received by component and stage", tags).Add(float64(byteSize))
}

// BytesSent records a sink's BytesSent{protocol, endpoint, count}
// observation.
func (r *Registry) BytesSent(protocol, endpoint string, count int64) {
	tags := Tags{"protocol": protocol, "endpoint": endpoint}
	r.Counter("flowgate_bytes_sent_total", "Total bytes sent by protocol and endpoint", tags).Add(float64(count))
}

// EndpointBytesReceived records a gRPC/HTTP source's per-endpoint
// receive volume.
func (r *Registry) EndpointBytesReceived(endpoint string, count int64) {
	tags := Tags{"endpoint": endpoint}
	r.Counter("flowgate_endpoint_bytes_received_total", "Total bytes received by endpoint", tags).Add(float64(count))
}
