package disk

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
)

func seqEvent(t *testing.T, seq int) (event.Event, <-chan finalize.Status) {
	t.Helper()
	bn, done := finalize.NewBatchNotifier()
	f := finalize.AddFinalizer(bn)
	bn.Release()
	fields := event.NewObjectMap()
	fields.Set("seq", event.NewInteger(int64(seq)))
	e := event.NewLog(fields, event.EventMetadata{Finalizers: finalize.EventFinalizers{f}})
	return e, done
}

func seqOf(t *testing.T, e event.Event) int64 {
	t.Helper()
	v, ok := e.Get(event.MustParsePath("seq"))
	if !ok {
		t.Fatal("event missing seq field")
	}
	i, ok := v.Integer()
	if !ok {
		t.Fatal("seq field is not an integer")
	}
	return i
}

func testConfig(dir string) Config {
	return Config{
		Dir:             dir,
		MaxDataFileSize: 4096,
		MaxFileID:       MaxFileIDTest,
		FlushInterval:   10 * time.Millisecond,
		Policy:          buffer.Block,
	}
}

func TestDiskSendRecvRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(testConfig(dir))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	sender, receiver := b.Sender(), b.Receiver()

	const n = 20
	for i := 0; i < n; i++ {
		e, _ := seqEvent(t, i)
		if err := sender.Send(ctx, e); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		got, ok := receiver.Recv(recvCtx)
		cancel()
		if !ok {
			t.Fatalf("Recv(%d): expected an event", i)
		}
		if seqOf(t, got) != int64(i) {
			t.Fatalf("Recv(%d) seq = %d, want %d (order must be preserved)", i, seqOf(t, got), i)
		}
		if err := b.Ack(1); err != nil {
			t.Fatalf("Ack(%d): %v", i, err)
		}
	}
}

func TestDiskCrashAndRecovery(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	b, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	sender, receiver := b.Sender(), b.Receiver()

	const total = 1000
	const acked = 400
	for i := 0; i < total; i++ {
		e, _ := seqEvent(t, i)
		if err := sender.Send(ctx, e); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	for i := 0; i < acked; i++ {
		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		got, ok := receiver.Recv(recvCtx)
		cancel()
		if !ok {
			t.Fatalf("Recv(%d): expected an event before simulated crash", i)
		}
		if seqOf(t, got) != int64(i) {
			t.Fatalf("Recv(%d) seq = %d, want %d", i, seqOf(t, got), i)
		}
		if err := b.Ack(1); err != nil {
			t.Fatalf("Ack(%d): %v", i, err)
		}
	}

	// Simulate a crash: drop the in-memory Buffer without a clean
	// Close (no final flush, no reader/writer file close), then reopen
	// against the same directory as a fresh process would.
	if err := b.writer.sync(); err != nil {
		t.Fatalf("pre-crash writer sync: %v", err)
	}
	if err := b.ledger.Sync(); err != nil {
		t.Fatalf("pre-crash ledger sync: %v", err)
	}
	_ = b.unlock()

	b2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen after simulated crash: %v", err)
	}
	defer b2.Close()

	receiver2 := b2.Receiver()
	for i := acked; i < total; i++ {
		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		got, ok := receiver2.Recv(recvCtx)
		cancel()
		if !ok {
			t.Fatalf("Recv(%d) after recovery: expected an event", i)
		}
		if seqOf(t, got) != int64(i) {
			t.Fatalf("Recv(%d) after recovery seq = %d, want %d", i, seqOf(t, got), i)
		}
		if err := b2.Ack(1); err != nil {
			t.Fatalf("Ack(%d) after recovery: %v", i, err)
		}
	}

	gotNext, err := b2.ledger.ReaderNextRecordID()
	if err != nil {
		t.Fatalf("ReaderNextRecordID: %v", err)
	}
	if gotNext != uint64(total) {
		t.Fatalf("reader-next-record-id = %d, want %d", gotNext, total)
	}
}

func TestDiskRecoveryTruncatesTornTrailingRecord(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	b, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	sender := b.Sender()

	for i := 0; i < 5; i++ {
		e, _ := seqEvent(t, i)
		if err := sender.Send(ctx, e); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}
	if err := b.writer.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	dataPath := dataFilePath(dir, b.writer.id)
	_ = b.unlock()

	// Append a deliberately corrupt trailing record: a well-formed
	// length/id header but payload bytes that don't match the CRC.
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		t.Fatalf("open data file to corrupt: %v", err)
	}
	garbage := encodeRecord(5, []byte(`{"type":"log","fields":{"k":"object","o":[]}}`))
	garbage[len(garbage)-1] ^= 0xFF // flip a payload byte so the CRC no longer matches
	if _, err := f.Write(garbage); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close data file: %v", err)
	}

	sizeBefore, err := os.Stat(dataPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	b2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen over a torn trailing record: %v", err)
	}
	defer b2.Close()

	sizeAfter, err := os.Stat(dataPath)
	if err == nil && sizeAfter.Size() >= sizeBefore.Size() {
		t.Fatalf("expected recovery to truncate the torn tail, file did not shrink")
	}

	receiver := b2.Receiver()
	for i := 0; i < 5; i++ {
		recvCtx, cancel := context.WithTimeout(ctx, time.Second)
		got, ok := receiver.Recv(recvCtx)
		cancel()
		if !ok {
			t.Fatalf("Recv(%d): expected the 5 good records to survive recovery", i)
		}
		if seqOf(t, got) != int64(i) {
			t.Fatalf("Recv(%d) seq = %d, want %d", i, seqOf(t, got), i)
		}
		_ = b2.Ack(1)
	}
}

func TestDiskPolicyDropNewestFinalizesDelivered(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.MaxBufferSize = cfg.MaxDataFileSize // one data file's worth of budget
	cfg.Policy = buffer.DropNewest

	b, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	sender := b.Sender()

	// Fill the buffer past its configured budget; later sends should
	// be dropped rather than block.
	var lastDone <-chan finalize.Status
	for i := 0; i < 500; i++ {
		e, done := seqEvent(t, i)
		if err := sender.Send(ctx, e); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
		lastDone = done
	}

	select {
	case status := <-lastDone:
		if status != finalize.Delivered {
			t.Fatalf("dropped event status = %v, want Delivered", status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a drop to finalize Delivered; buffer may not have filled")
	}
}
