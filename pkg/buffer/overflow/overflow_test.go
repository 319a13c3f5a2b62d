package overflow

import (
	"context"
	"testing"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/buffer/memory"
	"github.com/basinrelay/flowgate/pkg/event"
)

func newEvent() event.Event {
	return event.NewLog(nil, event.EventMetadata{})
}

func TestSenderFallsBackWhenPrimaryFull(t *testing.T) {
	primarySend, primaryRecv := memory.New(1, buffer.Block, "primary")
	secondarySend, secondaryRecv := memory.New(4, buffer.Block, "secondary")
	s := NewSender(primarySend, secondarySend)
	ctx := context.Background()

	if err := s.Send(ctx, newEvent()); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send(ctx, newEvent()); err != nil {
		t.Fatalf("overflowing send: %v", err)
	}

	if _, ok := primaryRecv.Recv(ctx); !ok {
		t.Fatal("expected first event to land in primary")
	}
	if _, ok := secondaryRecv.Recv(ctx); !ok {
		t.Fatal("expected second event to have overflowed into secondary")
	}
}

func TestReceiverDeliversFromBothSides(t *testing.T) {
	primarySend, primaryRecv := memory.New(4, buffer.Block, "primary")
	secondarySend, secondaryRecv := memory.New(4, buffer.Block, "secondary")
	r := NewReceiver(primaryRecv, secondaryRecv)
	ctx := context.Background()

	if err := primarySend.Send(ctx, newEvent()); err != nil {
		t.Fatalf("send to primary: %v", err)
	}
	if err := secondarySend.Send(ctx, newEvent()); err != nil {
		t.Fatalf("send to secondary: %v", err)
	}

	seen := 0
	for i := 0; i < 2; i++ {
		if _, ok := r.Recv(ctx); ok {
			seen++
		}
	}
	if seen != 2 {
		t.Fatalf("received %d events, want 2", seen)
	}
}

func TestReceiverAlternatesPriority(t *testing.T) {
	primarySend, primaryRecv := memory.New(8, buffer.Block, "primary")
	secondarySend, secondaryRecv := memory.New(8, buffer.Block, "secondary")
	r := NewReceiver(primaryRecv, secondaryRecv)
	ctx := context.Background()

	// Fill both sides so every Recv call has a choice; the priority
	// toggle should mean we don't always pick the same side first.
	for i := 0; i < 4; i++ {
		_ = primarySend.Send(ctx, newEvent())
		_ = secondarySend.Send(ctx, newEvent())
	}

	for i := 0; i < 8; i++ {
		if _, ok := r.Recv(ctx); !ok {
			t.Fatalf("Recv %d: expected an event", i)
		}
		if d := primaryRecv.Len() - secondaryRecv.Len(); d > 1 || d < -1 {
			t.Fatalf("after Recv %d: primary holds %d, secondary %d; priority did not alternate", i, primaryRecv.Len(), secondaryRecv.Len())
		}
	}
}
