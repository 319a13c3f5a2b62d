package disk

import (
	"fmt"
	"os"
	"path/filepath"
)

// dataFilePath returns the path of the data file for the given id.
func dataFilePath(dir string, id uint16) string {
	return filepath.Join(dir, fmt.Sprintf("data-%05d.dbf", id))
}

// acquireLock takes an exclusive, directory-scoped advisory lock so two
// flowgate processes never open the same buffer directory concurrently,
// mirroring the single-writer guarantee bbolt gets from flock at the OS
// level (the teacher's pkg/storage wraps exactly that bbolt behavior).
// A plain O_EXCL sentinel file is sufficient here since disk buffers,
// unlike a bbolt database, are never opened read-only by a second
// process.
func acquireLock(dir string) (release func() error, err error) {
	lockPath := filepath.Join(dir, "LOCK")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("disk: buffer directory %s is already locked by another process", dir)
		}
		return nil, fmt.Errorf("disk: acquire lock in %s: %w", dir, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("disk: close lock file: %w", err)
	}
	return func() error { return os.Remove(lockPath) }, nil
}

// writerFile tracks the data file currently being appended to.
type writerFile struct {
	id   uint16
	file *os.File
	size int64
}

func openWriterFile(dir string, id uint16) (*writerFile, error) {
	f, err := os.OpenFile(dataFilePath(dir, id), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("disk: open data file %d for writing: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat data file %d: %w", id, err)
	}
	return &writerFile{id: id, file: f, size: info.Size()}, nil
}

// append writes buf to the file and returns the new size. Callers are
// responsible for checking size against MaxDataFileSize before the next
// write and rolling as needed.
func (w *writerFile) append(buf []byte) error {
	n, err := w.file.Write(buf)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("disk: write data file %d: %w", w.id, err)
	}
	return nil
}

func (w *writerFile) sync() error { return w.file.Sync() }
func (w *writerFile) close() error { return w.file.Close() }

// readerFile tracks the data file currently being read from.
type readerFile struct {
	id   uint16
	file *os.File
	off  int64
}

func openReaderFile(dir string, id uint16) (*readerFile, error) {
	f, err := os.OpenFile(dataFilePath(dir, id), os.O_RDONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("disk: open data file %d for reading: %w", id, err)
	}
	return &readerFile{id: id, file: f}, nil
}

// readNext reads one framed record starting at r.off, advancing off on
// success. It returns (record, false, nil) at a clean end-of-file (no
// partial header present) and (zero, false, errTornRecord) if a record
// fails its CRC check, which recovery treats as the end of valid data.
func (r *readerFile) readNext() (decodedRecord, bool, error) {
	header := make([]byte, recordHeaderSize)
	n, err := r.file.ReadAt(header, r.off)
	if n < recordHeaderSize {
		return decodedRecord{}, false, nil // clean EOF
	}
	if err != nil && n < recordHeaderSize {
		return decodedRecord{}, false, nil
	}
	length := int(headerLength(header))
	full := make([]byte, recordHeaderSize+length)
	n, err = r.file.ReadAt(full, r.off)
	if n < len(full) {
		return decodedRecord{}, false, nil // torn trailing write, treat as EOF
	}
	if err != nil && n < len(full) {
		return decodedRecord{}, false, nil
	}
	rec, consumed, decErr := decodeRecord(full)
	if decErr != nil {
		return decodedRecord{}, false, decErr
	}
	r.off += int64(consumed)
	return rec, true, nil
}

func (r *readerFile) close() error { return r.file.Close() }

func headerLength(header []byte) uint32 {
	return uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
}
