// Package proto holds the wire messages for the EventService RPCs.
//
// These are hand-written in the pre-protoreflect generated-code idiom:
// each type implements only the legacy proto.Message trio
// (Reset/String/ProtoMessage) and carries protobuf struct tags, rather
// than the descriptor-backed ProtoReflect() method protoc-gen-go emits.
// google.golang.org/protobuf's legacy support (reached via
// protoadapt.MessageV2Of, see ../codec.go) marshals types in this shape
// by parsing the struct tags at runtime, the same path pre-existing
// hand-maintained .pb.go files have relied on since the v1 compatibility
// layer was introduced.
package proto

import "fmt"

// PushEventsRequest carries one already-encoded batch (built by pkg/pipeline's RequestBuilder)
// across the wire. Payload is the batch's serialized bytes, optionally
// gzip-compressed per ContentEncoding.
type PushEventsRequest struct {
	BatchId         string `protobuf:"bytes,1,opt,name=batch_id,json=batchId,proto3" json:"batch_id,omitempty"`
	Payload         []byte `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
	ContentEncoding string `protobuf:"bytes,3,opt,name=content_encoding,json=contentEncoding,proto3" json:"content_encoding,omitempty"`
}

func (m *PushEventsRequest) Reset()         { *m = PushEventsRequest{} }
func (m *PushEventsRequest) String() string { return fmt.Sprintf("PushEventsRequest{BatchId: %q, len(Payload): %d}", m.BatchId, len(m.Payload)) }
func (*PushEventsRequest) ProtoMessage()    {}

// PushEventsResponse acknowledges or rejects a batch. A rejection
// (Accepted=false) carries a human-readable reason in Error and maps to
// a permanent send failure on the caller's side (see pkg/pipeline's
// acknowledgement handling); transient failures are surfaced as a gRPC
// status error instead of a false Accepted.
type PushEventsResponse struct {
	Accepted bool   `protobuf:"varint,1,opt,name=accepted,proto3" json:"accepted,omitempty"`
	Error    string `protobuf:"bytes,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *PushEventsResponse) Reset()         { *m = PushEventsResponse{} }
func (m *PushEventsResponse) String() string { return fmt.Sprintf("PushEventsResponse{Accepted: %t, Error: %q}", m.Accepted, m.Error) }
func (*PushEventsResponse) ProtoMessage()    {}

// HealthCheckRequest is empty; its presence (rather than reusing
// google.protobuf.Empty) keeps the service self-contained without a
// well-known-types dependency.
type HealthCheckRequest struct{}

func (m *HealthCheckRequest) Reset()         { *m = HealthCheckRequest{} }
func (m *HealthCheckRequest) String() string { return "HealthCheckRequest{}" }
func (*HealthCheckRequest) ProtoMessage()    {}

type HealthCheckResponse struct {
	Status string `protobuf:"bytes,1,opt,name=status,proto3" json:"status,omitempty"`
}

func (m *HealthCheckResponse) Reset()         { *m = HealthCheckResponse{} }
func (m *HealthCheckResponse) String() string { return fmt.Sprintf("HealthCheckResponse{Status: %q}", m.Status) }
func (*HealthCheckResponse) ProtoMessage()    {}
