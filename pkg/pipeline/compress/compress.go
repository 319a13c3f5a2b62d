// Package compress implements the request-body encodings a sink may
// apply before dispatch: none, gzip, zstd, and snappy, matching the
// Content-Encoding values the reference HTTP sink advertises.
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Encoding names a compression scheme by its Content-Encoding value.
type Encoding string

const (
	None   Encoding = "identity"
	Gzip   Encoding = "gzip"
	Zstd   Encoding = "zstd"
	Snappy Encoding = "snappy"
)

// Compressor compresses a request body in one shot. Implementations
// are safe for concurrent use; the dispatcher's per-sink concurrency
// limit means many in-flight requests can be compressing at once.
type Compressor interface {
	Encoding() Encoding
	Compress(src []byte) ([]byte, error)
}

// New constructs the Compressor for enc. gzipLevel is only consulted
// for Gzip; pass gzip.DefaultCompression if unsure.
func New(enc Encoding, gzipLevel int) (Compressor, error) {
	switch enc {
	case None, "":
		return identityCompressor{}, nil
	case Gzip:
		return gzipCompressor{level: gzipLevel}, nil
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("compress: building zstd encoder: %w", err)
		}
		return zstdCompressor{enc: enc}, nil
	case Snappy:
		return snappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("compress: unknown encoding %q", enc)
	}
}

type identityCompressor struct{}

func (identityCompressor) Encoding() Encoding                { return None }
func (identityCompressor) Compress(src []byte) ([]byte, error) { return src, nil }

type gzipCompressor struct{ level int }

func (gzipCompressor) Encoding() Encoding { return Gzip }

func (c gzipCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zstdCompressor wraps a single *zstd.Encoder. EncodeAll is documented
// safe for concurrent use by multiple goroutines sharing one encoder,
// so the dispatcher's concurrent requests share it rather than paying
// per-call setup cost.
type zstdCompressor struct{ enc *zstd.Encoder }

func (zstdCompressor) Encoding() Encoding { return Zstd }

func (c zstdCompressor) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

type snappyCompressor struct{}

func (snappyCompressor) Encoding() Encoding { return Snappy }

func (snappyCompressor) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

// Decompress reverses Compress for enc. Neither the reference sinks
// nor pkg/transport call it.
func Decompress(enc Encoding, src []byte) ([]byte, error) {
	switch enc {
	case None, "":
		return src, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case Zstd:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(src, nil)
	case Snappy:
		return snappy.Decode(nil, src)
	default:
		return nil, fmt.Errorf("compress: unknown encoding %q", enc)
	}
}
