package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRegistryCounterAccumulates(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("test_requests_total", "test counter", Tags{"sink": "a"})
	c.Add(3)
	c = r.Counter("test_requests_total", "test counter", Tags{"sink": "a"})
	c.Add(2)

	if got := counterValue(t, c); got != 5 {
		t.Fatalf("counter value = %v, want 5", got)
	}
}

func TestRegistryDistinctTagsAreDistinctSeries(t *testing.T) {
	r := NewRegistry()
	r.Counter("test_requests_total", "test counter", Tags{"sink": "a"}).Add(1)
	r.Counter("test_requests_total", "test counter", Tags{"sink": "b"}).Add(1)

	if got := r.Cardinality(); got != 2 {
		t.Fatalf("Cardinality() = %d, want 2", got)
	}
}

func TestRegistryCardinalityDeduplicatesRepeatedTagSets(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Counter("test_requests_total", "test counter", Tags{"sink": "a"}).Add(1)
	}
	if got := r.Cardinality(); got != 1 {
		t.Fatalf("Cardinality() = %d, want 1", got)
	}
}

func TestRegistryEventsReceivedRecordsCountAndBytes(t *testing.T) {
	r := NewRegistry()
	r.EventsReceived("generator", "receiving", 10, 2048)

	c := r.Counter("flowgate_events_received_total", "", Tags{"component": "generator", "stage": "receiving"})
	if got := counterValue(t, c); got != 10 {
		t.Fatalf("events received = %v, want 10", got)
	}
	b := r.Counter("flowgate_bytes_received_total", "", Tags{"component": "generator", "stage": "receiving"})
	if got := counterValue(t, b); got != 2048 {
		t.Fatalf("bytes received = %v, want 2048", got)
	}
}

func TestRegistryInstancesAreIsolated(t *testing.T) {
	r1 := NewRegistry()
	r2 := NewRegistry()

	r1.Counter("test_isolated_total", "", Tags{}).Add(1)
	if got := r2.Cardinality(); got != 0 {
		t.Fatalf("second registry observed the first registry's metric: cardinality=%d", got)
	}
}
