package memory

import (
	"context"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
)

func newTestEvent(t *testing.T) (event.Event, <-chan finalize.Status) {
	t.Helper()
	bn, done := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()
	e := event.NewLog(nil, event.EventMetadata{Finalizers: finalize.EventFinalizers{f}})
	return e, done
}

func TestMemorySendRecvRoundTrip(t *testing.T) {
	s, r := New(4, buffer.Block, "test-edge")
	ctx := context.Background()

	e, _ := newTestEvent(t)
	if err := s.Send(ctx, e); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, ok := r.Recv(ctx)
	if !ok {
		t.Fatal("expected Recv to return an event")
	}
	if got.Type() != event.TypeLog {
		t.Fatalf("got.Type() = %v, want Log", got.Type())
	}
}

func TestMemoryDropNewestFinalizesDelivered(t *testing.T) {
	s, _ := New(1, buffer.DropNewest, "test-edge")
	ctx := context.Background()

	filler, _ := newTestEvent(t)
	if err := s.Send(ctx, filler); err != nil {
		t.Fatalf("Send filler: %v", err)
	}

	dropped, done := newTestEvent(t)
	if err := s.Send(ctx, dropped); err != nil {
		t.Fatalf("Send dropped: %v", err)
	}

	select {
	case status := <-done:
		if status != finalize.Delivered {
			t.Fatalf("status = %v, want Delivered", status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for finalizer status")
	}
}

func TestMemoryBlockRespectsContextCancellation(t *testing.T) {
	s, _ := New(1, buffer.Block, "test-edge")
	filler, _ := newTestEvent(t)
	if err := s.Send(context.Background(), filler); err != nil {
		t.Fatalf("Send filler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	blocked, _ := newTestEvent(t)
	if err := s.Send(ctx, blocked); err == nil {
		t.Fatal("expected Send to fail once context is cancelled on a full Block buffer")
	}
}

func TestMemoryTrySendReportsFullness(t *testing.T) {
	s, _ := New(1, buffer.Block, "test-edge")
	first, _ := newTestEvent(t)
	if !s.TrySend(first) {
		t.Fatal("expected first TrySend to succeed")
	}
	second, _ := newTestEvent(t)
	if s.TrySend(second) {
		t.Fatal("expected second TrySend on a full buffer of capacity 1 to fail")
	}
}
