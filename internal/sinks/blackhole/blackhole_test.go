package blackhole

import (
	"context"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/buffer/memory"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
)

func TestSinkAcknowledgesAndDrains(t *testing.T) {
	sender, receiver := memory.New(4, buffer.Block, "test->bh")
	sink := New("bh", receiver)

	bn, statusCh := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fields := event.NewObjectMap()
	e := event.NewLog(fields, event.EventMetadata{Finalizers: finalize.EventFinalizers{f}})
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

	cancel()
	<-done
}

func TestHealthcheckAlwaysSucceeds(t *testing.T) {
	_, receiver := memory.New(1, buffer.Block, "test->bh")
	sink := New("bh", receiver)
	if err := sink.Healthcheck(context.Background()); err != nil {
		t.Fatalf("Healthcheck: %v", err)
	}
}
