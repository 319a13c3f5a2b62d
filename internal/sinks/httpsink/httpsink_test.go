package httpsink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/buffer/memory"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/pipeline"
	"github.com/basinrelay/flowgate/pkg/pipeline/compress"
)

func sendLog(t *testing.T, sender *memory.Sender, message string) <-chan finalize.Status {
	t.Helper()
	bn, statusCh := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()

	fields := event.NewObjectMap()
	fields.Set("message", event.NewString(message))
	e := event.NewLog(fields, event.EventMetadata{Finalizers: finalize.EventFinalizers{f}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sender.Send(ctx, e); err != nil {
		t.Fatalf("Send: %v", err)
	}
	return statusCh
}

func TestSinkDeliversBatchAndAcknowledges(t *testing.T) {
	var received int32
	var body []byte
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = append(body, b...)
		mu.Unlock()
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender, receiver := memory.New(4, buffer.Block, "test->httpsink")
	sink, err := New("h", Config{
		URL:            server.URL,
		BatchLimits:    pipeline.BatchLimits{MaxEvents: 1},
		Compression:    compress.None,
		MaxConcurrency: 2,
		MaxRetries:     3,
		RequestTimeout: 5 * time.Second,
	}, receiver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	statusCh := sendLog(t, sender, "hello")

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- sink.Run(ctx) }()

	select {
	case status := <-statusCh:
		if status != finalize.Delivered {
			t.Fatalf("status = %v, want Delivered", status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for finalizer status")
	}

	cancel()
	<-done

	if atomic.LoadInt32(&received) != 1 {
		t.Fatalf("received %d requests, want 1", received)
	}
}

func TestSinkRejectsNonRetriableStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender, receiver := memory.New(4, buffer.Block, "test->httpsink")
	sink, err := New("h", Config{
		URL:            server.URL,
		BatchLimits:    pipeline.BatchLimits{MaxEvents: 1},
		MaxConcurrency: 1,
		MaxRetries:     3,
		RequestTimeout: 5 * time.Second,
	}, receiver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	statusCh := sendLog(t, sender, "bad")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	select {
	case status := <-statusCh:
		if status != finalize.Rejected {
			t.Fatalf("status = %v, want Rejected", status)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for finalizer status")
	}

	cancel()
	<-done
}

func TestHealthcheckReflectsEndpointStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, receiver := memory.New(1, buffer.Block, "test->httpsink")
	sink, err := New("h", Config{URL: server.URL}, receiver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sink.Healthcheck(context.Background()); err != nil {
		t.Fatalf("Healthcheck: %v", err)
	}
}

func TestHealthcheckFailsOnUnreachableEndpoint(t *testing.T) {
	_, receiver := memory.New(1, buffer.Block, "test->httpsink")
	sink, err := New("h", Config{URL: "http://127.0.0.1:1"}, receiver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sink.Healthcheck(context.Background()); err == nil {
		t.Fatal("Healthcheck: want error for unreachable endpoint")
	}
}
