package transport

import (
	"testing"

	eventpb "github.com/basinrelay/flowgate/pkg/transport/proto"
)

func TestLegacyProtoCodecRoundTrip(t *testing.T) {
	c := legacyProtoCodec{}
	in := &eventpb.PushEventsRequest{BatchId: "b-1", Payload: []byte("hello"), ContentEncoding: "gzip"}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	out := &eventpb.PushEventsRequest{}
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if out.BatchId != in.BatchId || string(out.Payload) != string(in.Payload) || out.ContentEncoding != in.ContentEncoding {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestLegacyProtoCodecName(t *testing.T) {
	if got := (legacyProtoCodec{}).Name(); got != "flowgate-legacy-proto" {
		t.Fatalf("Name() = %q, want flowgate-legacy-proto", got)
	}
}

func TestLegacyProtoCodecRejectsNonMessage(t *testing.T) {
	c := legacyProtoCodec{}
	if _, err := c.Marshal("not a message"); err == nil {
		t.Fatal("Marshal: expected an error for a non-proto.Message value")
	}
	if err := c.Unmarshal([]byte{}, "not a message"); err == nil {
		t.Fatal("Unmarshal: expected an error for a non-proto.Message value")
	}
}
