package pipeline

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/pipeline/compress"
)

func ndjsonEncode(events []event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		v, _ := e.Get(event.MustParsePath("seq"))
		fmt.Fprintf(&buf, "%s\n", v.String())
	}
	return buf.Bytes(), nil
}

func mustCompressor(t *testing.T, enc compress.Encoding) compress.Compressor {
	t.Helper()
	c, err := compress.New(enc, 0)
	if err != nil {
		t.Fatalf("compress.New(%s): %v", enc, err)
	}
	return c
}

func TestRequestBuilderSingleRequestWhenUnderLimit(t *testing.T) {
	rb := NewRequestBuilder(ndjsonEncode, mustCompressor(t, compress.None), 0)
	batch := Batch{Partition: "checkout", Events: []event.Event{
		fieldEvent(t, "checkout", 0),
		fieldEvent(t, "checkout", 1),
	}}

	reqs, err := rb.Build(batch)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].EventCount != 2 {
		t.Fatalf("EventCount = %d, want 2", reqs[0].EventCount)
	}
	if reqs[0].Finalizers.Len() != 2 {
		t.Fatalf("Finalizers.Len() = %d, want 2", reqs[0].Finalizers.Len())
	}
}

func TestRequestBuilderSplitsOversizedBatch(t *testing.T) {
	// Each encoded event is 2 bytes ("N\n"); with 10 events the whole
	// batch is 20 bytes, well over a 5-byte cap, forcing a split.
	rb := NewRequestBuilder(ndjsonEncode, mustCompressor(t, compress.None), 5)
	var events []event.Event
	for i := 0; i < 10; i++ {
		events = append(events, fieldEvent(t, "checkout", i))
	}
	batch := Batch{Partition: "checkout", Events: events}

	reqs, err := rb.Build(batch)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reqs) < 2 {
		t.Fatalf("got %d requests, want at least 2 for an oversized batch", len(reqs))
	}
	total := 0
	for _, r := range reqs {
		if len(r.Body) > 5 && r.EventCount > 1 {
			t.Fatalf("sub-request with %d events still exceeds the byte cap (%d bytes)", r.EventCount, len(r.Body))
		}
		total += r.EventCount
	}
	if total != 10 {
		t.Fatalf("sub-requests cover %d events total, want 10", total)
	}
}

func TestRequestBuilderEmptyBatchYieldsNoRequests(t *testing.T) {
	rb := NewRequestBuilder(ndjsonEncode, mustCompressor(t, compress.None), 0)
	reqs, err := rb.Build(Batch{Partition: "checkout"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("got %d requests for an empty batch, want 0", len(reqs))
	}
}
