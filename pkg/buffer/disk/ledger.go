package disk

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// ledgerMagic identifies the file format; the trailing NULs leave room
// for a future version byte without shifting the fixed-offset fields.
var ledgerMagic = [8]byte{'B', 'U', 'F', 'v', '2', 0, 0, 0}

// Ledger field byte offsets, all little-endian, matching the layout in
// spec.md §4.3/§6: writer-next-record-id, writer-current-data-file-id,
// reader-next-record-id, reader-current-data-file-id, total-buffer-size.
const (
	offMagic             = 0
	offWriterNextRecord  = 8  // u64
	offWriterCurrentFile = 16 // u16
	offReaderNextRecord  = 24 // u64
	offReaderCurrentFile = 32 // u16
	offTotalBufferSize   = 40 // u64
	ledgerSize           = 4096
)

// ledger is the fixed-size control file shared between the writer and
// reader halves of a disk buffer. Fields are read/written at constant
// offsets under mu rather than memory-mapped: no example in the
// retrieval pack imports an mmap library, and disjoint offsets under a
// single mutex give the same "shared file, independently updated
// fields" property this format needs.
type ledger struct {
	mu   sync.Mutex
	file *os.File
}

// openLedger opens or creates the ledger file at path.
func openLedger(path string) (*ledger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("disk: open ledger %s: %w", path, err)
	}
	l := &ledger{file: f}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat ledger %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := l.initialize(); err != nil {
			f.Close()
			return nil, err
		}
		return l, nil
	}

	var magic [8]byte
	if _, err := f.ReadAt(magic[:], offMagic); err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: read ledger magic: %w", err)
	}
	if magic != ledgerMagic {
		f.Close()
		return nil, fmt.Errorf("disk: %s is not a flowgate buffer ledger", path)
	}
	return l, nil
}

func (l *ledger) initialize() error {
	buf := make([]byte, ledgerSize)
	copy(buf[offMagic:], ledgerMagic[:])
	if _, err := l.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("disk: initialize ledger: %w", err)
	}
	return l.file.Sync()
}

func (l *ledger) readU64(off int64) (uint64, error) {
	var b [8]byte
	l.mu.Lock()
	_, err := l.file.ReadAt(b[:], off)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (l *ledger) writeU64(off int64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	l.mu.Lock()
	_, err := l.file.WriteAt(b[:], off)
	l.mu.Unlock()
	return err
}

func (l *ledger) readU16(off int64) (uint16, error) {
	var b [2]byte
	l.mu.Lock()
	_, err := l.file.ReadAt(b[:], off)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (l *ledger) writeU16(off int64, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	l.mu.Lock()
	_, err := l.file.WriteAt(b[:], off)
	l.mu.Unlock()
	return err
}

func (l *ledger) WriterNextRecordID() (uint64, error)  { return l.readU64(offWriterNextRecord) }
func (l *ledger) SetWriterNextRecordID(v uint64) error  { return l.writeU64(offWriterNextRecord, v) }
func (l *ledger) WriterCurrentFileID() (uint16, error)  { return l.readU16(offWriterCurrentFile) }
func (l *ledger) SetWriterCurrentFileID(v uint16) error { return l.writeU16(offWriterCurrentFile, v) }
func (l *ledger) ReaderNextRecordID() (uint64, error)   { return l.readU64(offReaderNextRecord) }
func (l *ledger) SetReaderNextRecordID(v uint64) error  { return l.writeU64(offReaderNextRecord, v) }
func (l *ledger) ReaderCurrentFileID() (uint16, error)  { return l.readU16(offReaderCurrentFile) }
func (l *ledger) SetReaderCurrentFileID(v uint16) error { return l.writeU16(offReaderCurrentFile, v) }
func (l *ledger) TotalBufferSize() (uint64, error)      { return l.readU64(offTotalBufferSize) }
func (l *ledger) SetTotalBufferSize(v uint64) error     { return l.writeU64(offTotalBufferSize, v) }

// Sync fsyncs the ledger file, part of the periodic flush cycle and of
// clean shutdown.
func (l *ledger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Sync()
}

func (l *ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
