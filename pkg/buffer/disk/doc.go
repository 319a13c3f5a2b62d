/*
Package disk implements flowgate's durable buffer edge: a write-ahead
log of bounded total size that satisfies the same BufferSender/
BufferReceiver contract as pkg/buffer/memory, backed by a fixed-layout
ledger file and a sequence of append-only data files.

No example repo in the retrieval pack implements framed WAL I/O, so the
numeric contract here (file size and record size defaults, the 16-bit
file id and its test-vs-production wraparound point) is grounded
directly on original_source lib/vector-buffers/src/disk_v2/common.rs.
Go idiom — explicit *os.File, filepath.Join under a configured data
directory, 0600 permissions, fmt.Errorf("...: %w", err) wrapping, a
directory-scoped advisory lock — follows the teacher's pkg/storage/
boltdb.go and pkg/volume/local.go.

The ledger is a small fixed-size file updated via os.File.ReadAt/
WriteAt at constant offsets under a mutex rather than memory-mapped:
no repo in the pack imports an mmap library, and disjoint-offset
ReadAt/WriteAt under a single writer mutex gives the same "shared file,
independently updated fields" property without one. Record integrity
uses the standard library's hash/crc32 with the Castagnoli polynomial;
record sizes here are bounded by max_record_size (default 8 MiB), which
does not justify a dedicated SIMD CRC dependency.
*/
package disk
