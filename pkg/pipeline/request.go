package pipeline

import (
	"fmt"

	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/pipeline/compress"
)

// EncodeFunc renders a batch's events into the wire payload a sink's
// transport sends, e.g. newline-delimited JSON, a protobuf PushEvents
// message, or a CSV body. RequestBuilder calls it on the whole batch
// first and again on each half whenever the compressed result exceeds
// maxBytes, so it may see more events than fit in one request.
type EncodeFunc func(events []event.Event) ([]byte, error)

// Request is one HTTP or gRPC call's worth of work: an encoded,
// possibly compressed body and the finalizers that must be resolved
// once the call's outcome is known.
type Request struct {
	Partition  string
	Body       []byte
	Encoding   compress.Encoding
	EventCount int
	Finalizers finalize.EventFinalizers
}

// RequestBuilder turns a Batch into one or more Requests. A batch is
// split into several requests only when its encoded, compressed size
// exceeds maxBytes; each sub-request carries only the finalizers for the
// events it actually contains, so a partial failure doesn't resolve
// finalizers for events a different sub-request is still delivering.
type RequestBuilder struct {
	encode     EncodeFunc
	compressor compress.Compressor
	maxBytes   int
}

// NewRequestBuilder constructs a RequestBuilder. maxBytes <= 0 means
// no splitting: Build always returns exactly one Request.
func NewRequestBuilder(encode EncodeFunc, compressor compress.Compressor, maxBytes int) *RequestBuilder {
	return &RequestBuilder{encode: encode, compressor: compressor, maxBytes: maxBytes}
}

// Build encodes batch into one or more Requests. When the whole batch
// fits under maxBytes it returns a single Request; otherwise it halves
// the batch recursively until each half's encoded, compressed size
// fits, or a single event alone exceeds maxBytes (returned as its own
// oversized Request rather than dropped, since splitting further
// wouldn't help and silently discarding data violates the pipeline's
// delivery contract).
func (rb *RequestBuilder) Build(batch Batch) ([]Request, error) {
	if len(batch.Events) == 0 {
		return nil, nil
	}
	return rb.build(batch.Partition, batch.Events)
}

func (rb *RequestBuilder) build(partition string, events []event.Event) ([]Request, error) {
	body, err := rb.encode(events)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encoding %d events: %w", len(events), err)
	}
	compressed, err := rb.compressor.Compress(body)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compressing request body: %w", err)
	}

	if rb.maxBytes <= 0 || len(compressed) <= rb.maxBytes || len(events) == 1 {
		return []Request{{
			Partition:  partition,
			Body:       compressed,
			Encoding:   rb.compressor.Encoding(),
			EventCount: len(events),
			Finalizers: finalizersOf(events),
		}}, nil
	}

	mid := len(events) / 2
	left, err := rb.build(partition, events[:mid])
	if err != nil {
		return nil, err
	}
	right, err := rb.build(partition, events[mid:])
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func finalizersOf(events []event.Event) finalize.EventFinalizers {
	var out finalize.EventFinalizers
	for _, e := range events {
		out = append(out, e.Metadata().Finalizers...)
	}
	return out
}
