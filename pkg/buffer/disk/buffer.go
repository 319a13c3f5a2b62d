package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
	"github.com/basinrelay/flowgate/pkg/event"
	"github.com/basinrelay/flowgate/pkg/finalize"
	"github.com/basinrelay/flowgate/pkg/log"
)

// Buffer is a durable, bounded write-ahead log satisfying the
// buffer.Sender/buffer.Receiver contract. A single Buffer owns both the
// writer and reader halves of one edge; Sender() and Receiver() return
// thin handles onto it so the rest of the topology only sees the
// buffer.Sender/buffer.Receiver interfaces.
type Buffer struct {
	cfg    Config
	ledger *ledger
	unlock func() error

	mu           sync.Mutex
	writer       *writerFile
	writerNextID uint64
	totalSize    uint64
	closed       bool
	closeCh      chan struct{}

	pendingMu sync.Mutex
	pending   map[uint64]finalize.EventFinalizers
	sizeByID  map[uint64]uint64

	reader       *readerFile
	readerNextID uint64
	deliverCh    chan deliveredRecord

	eventChOnce sync.Once
	eventChVal  chan event.Event

	flushWG sync.WaitGroup
	readWG  sync.WaitGroup
}

// eventCh lazily starts the single goroutine that forwards deliverCh
// into a plain event.Event channel, shared across every Chan() caller.
func (b *Buffer) eventCh() <-chan event.Event {
	b.eventChOnce.Do(func() {
		b.eventChVal = make(chan event.Event)
		go func() {
			defer close(b.eventChVal)
			for rec := range b.deliverCh {
				b.eventChVal <- rec.ev
			}
		}()
	})
	return b.eventChVal
}

type deliveredRecord struct {
	id uint64
	ev event.Event
}

// Open opens (creating if necessary) a disk buffer rooted at cfg.Dir.
// Every Open runs crash recovery, truncating away a torn or corrupt
// trailing record a prior unclean shutdown may have left.
func Open(cfg Config) (*Buffer, error) {
	cfg = cfg.WithDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("disk: Config.Dir must be set")
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("disk: create buffer directory %s: %w", cfg.Dir, err)
	}

	unlock, err := acquireLock(cfg.Dir)
	if err != nil {
		return nil, err
	}

	l, err := openLedger(filepath.Join(cfg.Dir, "ledger"))
	if err != nil {
		unlock()
		return nil, err
	}

	readerNextID, _ := l.ReaderNextRecordID()
	writerFileID, _ := l.WriterCurrentFileID()
	writerNextID, _ := l.WriterNextRecordID()
	totalSize, _ := l.TotalBufferSize()

	// The reader always resumes scanning from data file 0, never from
	// the ledger's persisted reader-current-file-id: that field tracks
	// how far the live tailing reader has physically read ahead, which
	// can be well past the last acknowledged record, since delivery and
	// acknowledgment are decoupled for throughput. This build never
	// deletes fully-consumed data files, so starting at 0 and skipping
	// every record below readerNextID (already done by readLoop and
	// recoverScan) is always safe, just not space-reclaiming.
	const readerStartFileID = 0

	recoveredNextID, recoveredFileID, truncateAt, err := recoverScan(cfg, readerStartFileID, readerNextID, uint16(writerFileID))
	if err != nil {
		l.Close()
		unlock()
		return nil, err
	}
	if truncateAt >= 0 {
		if err := os.Truncate(dataFilePath(cfg.Dir, recoveredFileID), truncateAt); err != nil {
			l.Close()
			unlock()
			return nil, fmt.Errorf("disk: truncate torn tail of data file %d: %w", recoveredFileID, err)
		}
	}
	if recoveredNextID > writerNextID {
		writerNextID = recoveredNextID
		writerFileID = recoveredFileID
		_ = l.SetWriterNextRecordID(writerNextID)
		_ = l.SetWriterCurrentFileID(writerFileID)
		_ = l.Sync()
	}

	wf, err := openWriterFile(cfg.Dir, writerFileID)
	if err != nil {
		l.Close()
		unlock()
		return nil, err
	}
	rf, err := openReaderFile(cfg.Dir, readerStartFileID)
	if err != nil {
		wf.close()
		l.Close()
		unlock()
		return nil, err
	}
	_ = l.SetReaderCurrentFileID(readerStartFileID)

	b := &Buffer{
		cfg:          cfg,
		ledger:       l,
		unlock:       unlock,
		writer:       wf,
		writerNextID: writerNextID,
		totalSize:    totalSize,
		closeCh:      make(chan struct{}),
		pending:      make(map[uint64]finalize.EventFinalizers),
		sizeByID:     make(map[uint64]uint64),
		reader:       rf,
		readerNextID: readerNextID,
		deliverCh:    make(chan deliveredRecord, 64),
	}

	b.flushWG.Add(1)
	go b.flushLoop()
	b.readWG.Add(1)
	go b.readLoop()

	return b, nil
}

// recoverScan walks data files starting at startFileID from the
// beginning, looking for the first record at or after startRecordID
// whose CRC fails or is truncated. It returns the id to resume writing
// at (one past the last good record), the file that record lives in,
// and the byte offset to truncate that file at (-1 if no truncation is
// needed because the scan reached a clean end of all written data).
func recoverScan(cfg Config, startFileID uint16, startRecordID uint64, writerFileID uint16) (nextID uint64, fileID uint16, truncateAt int64, err error) {
	fileID = startFileID
	nextID = startRecordID
	var lastGoodOffset int64

	for {
		path := dataFilePath(cfg.Dir, fileID)
		info, statErr := os.Stat(path)
		if statErr != nil {
			// No such file yet: nothing more to recover.
			return nextID, fileID, -1, nil
		}

		rf, openErr := openReaderFile(cfg.Dir, fileID)
		if openErr != nil {
			return 0, 0, 0, openErr
		}
		lastGoodOffset = 0
		for {
			rec, ok, recErr := rf.readNext()
			if recErr == errTornRecord {
				rf.close()
				return nextID, fileID, lastGoodOffset, nil
			}
			if recErr != nil {
				rf.close()
				return 0, 0, 0, fmt.Errorf("disk: recovery scan of %s: %w", path, recErr)
			}
			if !ok {
				break // clean EOF in this file
			}
			if rec.ID >= nextID {
				nextID = rec.ID + 1
			}
			lastGoodOffset = rf.off
		}
		rf.close()
		if rf.off < info.Size() {
			// Bytes past the last whole record: a torn trailing write
			// that readNext reports as end-of-file.
			return nextID, fileID, lastGoodOffset, nil
		}

		if fileID == writerFileID {
			// Reached the writer's last known file cleanly; nothing
			// past here to recover.
			return nextID, fileID, -1, nil
		}
		if info.Size() == 0 && fileID != startFileID {
			return nextID, fileID, -1, nil
		}
		fileID = uint16((uint32(fileID) + 1) % cfg.MaxFileID)
		if fileID == startFileID {
			// Wrapped all the way around without reaching writerFileID;
			// treat current position as the recovery point.
			return nextID, fileID, -1, nil
		}
	}
}

// Sender returns the producer-side handle onto b.
func (b *Buffer) Sender() buffer.Sender { return (*bufferSender)(b) }

// Receiver returns the consumer-side handle onto b.
func (b *Buffer) Receiver() buffer.ChanReceiver { return (*bufferReceiver)(b) }

type bufferSender Buffer
type bufferReceiver Buffer

func (s *bufferSender) buf() *Buffer { return (*Buffer)(s) }
func (r *bufferReceiver) buf() *Buffer { return (*Buffer)(r) }

func (s *bufferSender) Send(ctx context.Context, e event.Event) error {
	return s.buf().send(ctx, e)
}

func (s *bufferSender) Close() error { return s.buf().Close() }

func (r *bufferReceiver) Recv(ctx context.Context) (event.Event, bool) {
	b := r.buf()
	select {
	case rec, ok := <-b.deliverCh:
		if !ok {
			return event.Event{}, false
		}
		return rec.ev, true
	case <-ctx.Done():
		return event.Event{}, false
	case <-b.closeCh:
		select {
		case rec, ok := <-b.deliverCh:
			if !ok {
				return event.Event{}, false
			}
			return rec.ev, true
		default:
			return event.Event{}, false
		}
	}
}

// Chan exposes the delivery channel for fair polling by
// pkg/buffer/overflow. Unlike memory.Receiver, the element type differs
// from event.Event internally (deliveredRecord carries the record id
// for Ack bookkeeping), so this adapts it via a single forwarding
// goroutine shared across all callers rather than per-call fan-out.
func (r *bufferReceiver) Chan() <-chan event.Event {
	return r.buf().eventCh()
}

func (r *bufferReceiver) Close() error { return r.buf().Close() }

// send appends e to the current data file, applying cfg.Policy once
// MaxBufferSize would be exceeded, and retains e's finalizers in memory
// keyed by record id so Ack can resolve them once the consumer confirms
// processing.
func (b *Buffer) send(ctx context.Context, e event.Event) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return fmt.Errorf("disk: encode event: %w", err)
	}
	if uint32(len(payload)) > b.cfg.MaxRecordSize {
		return fmt.Errorf("disk: record of %d bytes exceeds max_record_size %d", len(payload), b.cfg.MaxRecordSize)
	}

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return buffer.ErrClosed
		}
		if b.cfg.MaxBufferSize > 0 && int64(b.totalSize)+int64(len(payload)) > b.cfg.MaxBufferSize {
			switch b.cfg.Policy {
			case buffer.DropNewest:
				b.mu.Unlock()
				meta := e.Metadata()
				meta.Finalizers.Drop()
				log.WithEdge(b.cfg.Dir).Warn().Msg("disk buffer full, dropping newest event per configured policy")
				return nil
			case buffer.Block:
				b.mu.Unlock()
				select {
				case <-time.After(10 * time.Millisecond):
					continue
				case <-ctx.Done():
					return ctx.Err()
				case <-b.closeCh:
					return buffer.ErrClosed
				}
			default:
				b.mu.Unlock()
				return fmt.Errorf("disk: buffer full and policy %v requires pkg/buffer/overflow composition", b.cfg.Policy)
			}
		}

		id := b.writerNextID
		frame := encodeRecord(id, payload)
		if b.writer.size+int64(len(frame)) > b.cfg.MaxDataFileSize {
			if err := b.rollWriterLocked(); err != nil {
				b.mu.Unlock()
				return err
			}
		}
		if err := b.writer.append(frame); err != nil {
			b.mu.Unlock()
			return err
		}
		b.writerNextID = id + 1
		b.totalSize += uint64(len(frame))
		_ = b.ledger.SetWriterNextRecordID(b.writerNextID)
		_ = b.ledger.SetTotalBufferSize(b.totalSize)
		b.mu.Unlock()

		meta := e.Metadata()
		b.pendingMu.Lock()
		b.sizeByID[id] = uint64(len(frame))
		if meta.Finalizers.Len() > 0 {
			b.pending[id] = meta.Finalizers
		}
		b.pendingMu.Unlock()
		return nil
	}
}

// rollWriterLocked advances to the next data file. Caller holds b.mu.
func (b *Buffer) rollWriterLocked() error {
	nextID := uint16((uint32(b.writer.id) + 1) % b.cfg.MaxFileID)
	readerFileID, _ := b.ledger.ReaderCurrentFileID()
	if nextID == readerFileID {
		return fmt.Errorf("disk: writer cannot roll onto data file %d still owned by the reader", nextID)
	}
	if err := b.writer.sync(); err != nil {
		return err
	}
	if err := b.writer.close(); err != nil {
		return err
	}
	wf, err := openWriterFile(b.cfg.Dir, nextID)
	if err != nil {
		return err
	}
	b.writer = wf
	return b.ledger.SetWriterCurrentFileID(nextID)
}

// readLoop feeds deliverCh from the reader's current position, rolling
// to subsequent data files as the writer vacates them.
func (b *Buffer) readLoop() {
	defer b.readWG.Done()
	defer close(b.deliverCh)
	for {
		rec, ok, err := b.reader.readNext()
		if err != nil {
			log.WithEdge(b.cfg.Dir).Error().Err(err).Msg("disk buffer reader failed")
			return
		}
		if !ok {
			writerFileID, _ := b.ledger.WriterCurrentFileID()
			if b.reader.id == writerFileID {
				// Caught up to the writer; wait for more data.
				select {
				case <-time.After(20 * time.Millisecond):
					continue
				case <-b.closeCh:
					return
				}
			}
			nextFileID := uint16((uint32(b.reader.id) + 1) % b.cfg.MaxFileID)
			b.reader.close()
			rf, err := openReaderFile(b.cfg.Dir, nextFileID)
			if err != nil {
				log.WithEdge(b.cfg.Dir).Error().Err(err).Msg("disk buffer reader: open next data file")
				return
			}
			b.reader = rf
			_ = b.ledger.SetReaderCurrentFileID(nextFileID)
			continue
		}
		if rec.ID < b.readerNextID {
			continue // already delivered before a restart; skip
		}
		ev, err := decodeEvent(rec.Payload)
		if err != nil {
			log.WithEdge(b.cfg.Dir).Error().Err(err).Uint64("record_id", rec.ID).Msg("disk buffer reader: decode record")
			continue
		}
		b.pendingMu.Lock()
		if f, ok := b.pending[rec.ID]; ok {
			ev.SetMetadata(event.EventMetadata{Finalizers: f, APIKey: ev.Metadata().APIKey, SchemaID: ev.Metadata().SchemaID})
		}
		// Record the frame size even for records this process never
		// wrote (e.g. redelivered after a restart), so Ack can still
		// reclaim total_buffer_size for them.
		if _, ok := b.sizeByID[rec.ID]; !ok {
			b.sizeByID[rec.ID] = uint64(recordHeaderSize + len(rec.Payload))
		}
		b.pendingMu.Unlock()

		select {
		case b.deliverCh <- deliveredRecord{id: rec.ID, ev: ev}:
		case <-b.closeCh:
			return
		}
	}
}

// Ack advances the reader's checkpoint past count previously delivered
// records and resolves their retained finalizers Delivered. The
// ledger's reader-next-record-id only moves forward on Ack, so a crash
// between delivery and Ack causes the record to be re-read on restart,
// per the at-least-once contract.
func (b *Buffer) Ack(count int) error {
	var freed uint64
	b.pendingMu.Lock()
	for i := 0; i < count; i++ {
		id := b.readerNextID + uint64(i)
		if f, ok := b.pending[id]; ok {
			f.UpdateStatus(finalize.Delivered)
			delete(b.pending, id)
		}
		if sz, ok := b.sizeByID[id]; ok {
			freed += sz
			delete(b.sizeByID, id)
		}
	}
	b.pendingMu.Unlock()

	b.readerNextID += uint64(count)
	if err := b.ledger.SetReaderNextRecordID(b.readerNextID); err != nil {
		return err
	}

	b.mu.Lock()
	if freed > b.totalSize {
		b.totalSize = 0
	} else {
		b.totalSize -= freed
	}
	err := b.ledger.SetTotalBufferSize(b.totalSize)
	b.mu.Unlock()
	return err
}

// Flush fsyncs the current data file and the ledger immediately,
// outside the normal flush_interval cadence; used on clean shutdown.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	err := b.writer.sync()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.ledger.Sync()
}

func (b *Buffer) flushLoop() {
	defer b.flushWG.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				log.WithEdge(b.cfg.Dir).Error().Err(err).Msg("disk buffer periodic flush failed")
			}
		case <-b.closeCh:
			return
		}
	}
}

// Close flushes once more and releases the buffer's resources. It does
// not wait for the reader to drain; callers that need a clean drain
// should stop sending and keep calling Recv/Ack until it returns false.
func (b *Buffer) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.closeCh)
	b.flushWG.Wait()
	b.readWG.Wait()

	_ = b.Flush()
	b.mu.Lock()
	werr := b.writer.close()
	b.mu.Unlock()
	rerr := b.reader.close()
	lerr := b.ledger.Close()
	uerr := b.unlock()
	for _, err := range []error{werr, rerr, lerr, uerr} {
		if err != nil {
			return err
		}
	}
	return nil
}
