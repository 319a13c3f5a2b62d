package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

type fakeStatsSource struct {
	stats []EdgeStat
}

func (f *fakeStatsSource) EdgeStats() []EdgeStat { return f.stats }

func gaugeValue(t *testing.T, label string) float64 {
	t.Helper()
	var m dto.Metric
	if err := QueueDepth.WithLabelValues(label).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollectorPublishesEdgeStats(t *testing.T) {
	src := &fakeStatsSource{stats: []EdgeStat{{Edge: "collector-test-src->collector-test-sink", QueueDepth: 7, BufferBytes: 4096}}}
	c := NewCollector(src, 10*time.Millisecond)
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(time.Second)
	for gaugeValue(t, "collector-test-src->collector-test-sink") != 7 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := gaugeValue(t, "collector-test-src->collector-test-sink"); got != 7 {
		t.Fatalf("QueueDepth = %v, want 7", got)
	}
}

func TestCollectorDefaultInterval(t *testing.T) {
	c := NewCollector(&fakeStatsSource{}, 0)
	if c.interval != 15*time.Second {
		t.Fatalf("default interval = %v, want 15s", c.interval)
	}
}

func TestCollectorStopHaltsPolling(t *testing.T) {
	src := &fakeStatsSource{stats: []EdgeStat{{Edge: "a->b", QueueDepth: 1}}}
	c := NewCollector(src, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	// Stop should return promptly and not panic on a second poll tick
	// racing the closed stopCh.
	time.Sleep(30 * time.Millisecond)
}
