package disk

import (
	"time"

	"github.com/basinrelay/flowgate/pkg/buffer"
)

const (
	// DefaultMaxDataFileSize is the size a data file may reach before
	// the writer rolls to the next one.
	DefaultMaxDataFileSize int64 = 128 * 1024 * 1024
	// DefaultMaxRecordSize is the largest single record accepted; a
	// larger write is rejected with a non-retryable error.
	DefaultMaxRecordSize uint32 = 8 * 1024 * 1024
	// DefaultFlushInterval is how often the background task fsyncs the
	// current data file and the ledger.
	DefaultFlushInterval = 500 * time.Millisecond

	// MaxFileIDProd is the production wraparound point for the
	// monotonically increasing 16-bit data file id.
	MaxFileIDProd uint32 = 65536
	// MaxFileIDTest is small enough that ordinary tests exercise file
	// id wraparound without writing gigabytes of data.
	MaxFileIDTest uint32 = 32
)

// Config parameterizes a disk buffer instance.
type Config struct {
	// Dir is the directory holding the ledger and data files. It must
	// be dedicated to a single buffer edge.
	Dir string
	// MaxBufferSize bounds total_buffer_size; it is rounded down to a
	// multiple of MaxDataFileSize, per original_source's rounding rule,
	// since a buffer can never usefully hold a fraction of a data file.
	MaxBufferSize int64
	// MaxDataFileSize is the per-file rollover threshold.
	MaxDataFileSize int64
	// MaxRecordSize bounds a single record's payload length.
	MaxRecordSize uint32
	// MaxFileID bounds the data file id before it wraps to 0. Tests
	// set this to MaxFileIDTest to exercise wraparound cheaply.
	MaxFileID uint32
	// FlushInterval is how often buffered writes are fsynced.
	FlushInterval time.Duration
	// Policy governs writer behavior once MaxBufferSize would be
	// exceeded: Block, DropNewest, or Overflow (to a further sink
	// composed via pkg/buffer/overflow).
	Policy buffer.Policy
}

// WithDefaults fills any zero-valued fields with their defaults and
// rounds MaxBufferSize down to a whole multiple of MaxDataFileSize, per
// original_source's buffer-size rounding rule.
func (c Config) WithDefaults() Config {
	if c.MaxDataFileSize == 0 {
		c.MaxDataFileSize = DefaultMaxDataFileSize
	}
	if c.MaxRecordSize == 0 {
		c.MaxRecordSize = DefaultMaxRecordSize
	}
	if c.MaxFileID == 0 {
		c.MaxFileID = MaxFileIDProd
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxBufferSize > 0 {
		c.MaxBufferSize = (c.MaxBufferSize / c.MaxDataFileSize) * c.MaxDataFileSize
		if c.MaxBufferSize == 0 {
			c.MaxBufferSize = c.MaxDataFileSize
		}
	}
	return c
}
