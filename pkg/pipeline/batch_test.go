package pipeline

import (
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
)

func fieldEvent(t *testing.T, service string, seq int) event.Event {
	t.Helper()
	bn, _ := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()
	o := event.NewObjectMap()
	o.Set("service", event.NewString(service))
	o.Set("seq", event.NewInteger(int64(seq)))
	return event.NewLog(o, event.EventMetadata{Finalizers: finalize.EventFinalizers{f}})
}

func constSize(n int) SizeFunc {
	return func(event.Event) int { return n }
}

func TestBatcherClosesOnMaxEvents(t *testing.T) {
	p := NewUnkeyedPartitioner()
	b := NewBatcher(p, BatchLimits{MaxEvents: 3}, constSize(1))
	go b.Run()
	defer b.Stop()

	for i := 0; i < 3; i++ {
		b.In() <- fieldEvent(t, "checkout", i)
	}

	select {
	case batch := <-b.Out():
		if len(batch.Events) != 3 {
			t.Fatalf("batch has %d events, want 3", len(batch.Events))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a full batch")
	}
}

func TestBatcherClosesOnTimeout(t *testing.T) {
	p := NewUnkeyedPartitioner()
	b := NewBatcher(p, BatchLimits{MaxEvents: 100, Timeout: 20 * time.Millisecond}, constSize(1))
	go b.Run()
	defer b.Stop()

	b.In() <- fieldEvent(t, "checkout", 0)

	select {
	case batch := <-b.Out():
		if len(batch.Events) != 1 {
			t.Fatalf("batch has %d events, want 1", len(batch.Events))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the timeout-driven flush")
	}
}

func TestBatcherPartitionsIndependently(t *testing.T) {
	p, err := NewPartitioner("{{ service }}")
	if err != nil {
		t.Fatalf("NewPartitioner: %v", err)
	}
	b := NewBatcher(p, BatchLimits{MaxEvents: 2}, constSize(1))
	go b.Run()
	defer b.Stop()

	b.In() <- fieldEvent(t, "checkout", 0)
	b.In() <- fieldEvent(t, "billing", 0)
	b.In() <- fieldEvent(t, "checkout", 1)
	b.In() <- fieldEvent(t, "billing", 1)

	seen := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case batch := <-b.Out():
			seen[batch.Partition] = len(batch.Events)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for per-partition batches")
		}
	}
	if seen["checkout"] != 2 || seen["billing"] != 2 {
		t.Fatalf("seen = %+v, want both partitions at 2", seen)
	}
}

func TestBatcherStopFlushesPartial(t *testing.T) {
	p := NewUnkeyedPartitioner()
	b := NewBatcher(p, BatchLimits{MaxEvents: 100}, constSize(1))
	go b.Run()

	b.In() <- fieldEvent(t, "checkout", 0)
	b.In() <- fieldEvent(t, "checkout", 1)

	done := make(chan Batch, 1)
	go func() {
		for batch := range b.Out() {
			done <- batch
		}
	}()

	b.Stop()

	select {
	case batch := <-done:
		if len(batch.Events) != 2 {
			t.Fatalf("flushed batch has %d events, want 2", len(batch.Events))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Stop to flush the partial batch")
	}
}
