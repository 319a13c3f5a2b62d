package stdin

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/buffer/memory"
)

func TestSourceParsesPlainAndJSONLines(t *testing.T) {
	sender, receiver := memory.New(8, buffer.Block, "stdin->test")
	input := "plain text line\n{\"message\":\"structured\",\"count\":3}\n"
	src := New("in", Config{Reader: strings.NewReader(input)}, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	first, ok := receiver.Recv(ctx)
	if !ok {
		t.Fatal("Recv returned false for first line")
	}
	fields, ok := first.Fields()
	if !ok {
		t.Fatal("expected a log event")
	}
	msg, ok := fields.Get("message")
	if !ok || msg.String() != "plain text line" {
		t.Fatalf("message = %v, want %q", msg, "plain text line")
	}

	second, ok := receiver.Recv(ctx)
	if !ok {
		t.Fatal("Recv returned false for second line")
	}
	fields2, _ := second.Fields()
	count, ok := fields2.Get("count")
	if !ok {
		t.Fatal("expected count field from parsed JSON")
	}
	if f, _ := count.Float(); f != 3 {
		t.Fatalf("count = %v, want 3", f)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSourceStopsOnContextCancel(t *testing.T) {
	sender, receiver := memory.New(1, buffer.Block, "stdin->test")
	r, w := io.Pipe()
	defer w.Close()
	src := New("in", Config{Reader: r}, sender)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	go func() { _, _ = w.Write([]byte("line one\n")) }()
	if _, ok := receiver.Recv(ctx); !ok {
		t.Fatal("expected one event before cancel")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
