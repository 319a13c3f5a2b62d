package console

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/buffer/memory"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
)

func TestSinkWritesJSONAndAcknowledges(t *testing.T) {
	sender, receiver := memory.New(4, buffer.Block, "test->console")
	var buf bytes.Buffer
	sink := New("c", Config{Writer: &buf, TagMode: event.TagSingle}, receiver)

	bn, statusCh := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()

	fields := event.NewObjectMap()
	fields.Set("message", event.NewString("hello"))
	e := event.NewLog(fields, event.EventMetadata{Finalizers: finalize.EventFinalizers{f}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sender.Send(ctx, e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	select {
	case status := <-statusCh:
		if status != finalize.Delivered {
			t.Fatalf("status = %v, want Delivered", status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for finalizer status")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if decoded["message"] != "hello" {
		t.Fatalf("message = %v, want hello", decoded["message"])
	}

	cancel()
	<-done
}
