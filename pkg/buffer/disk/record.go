package disk

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// recordHeaderSize is the fixed [length][crc][id] prefix before a
// record's payload.
const recordHeaderSize = 4 + 4 + 8

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// encodeRecord frames payload with the wire layout spec requires:
// [u32 length][u32 crc32c of (id‖payload)][u64 monotonic record id]
// [payload bytes], all multi-byte fields little-endian.
func encodeRecord(id uint64, payload []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(buf[8:16], id)
	copy(buf[16:], payload)

	h := crc32.New(crcTable)
	h.Write(buf[8:16])
	h.Write(payload)
	binary.LittleEndian.PutUint32(buf[4:8], h.Sum32())
	return buf
}

// decodedRecord is one successfully parsed record.
type decodedRecord struct {
	ID      uint64
	Payload []byte
}

// decodeRecord parses a single record from the front of buf, returning
// the record and the number of bytes consumed. It returns an error if
// buf does not contain a complete header, and a distinct "bad CRC"
// sentinel the caller can use to stop recovery at the first
// corrupted/torn record.
var errTornRecord = fmt.Errorf("disk: record failed crc check")

func decodeRecord(buf []byte) (decodedRecord, int, error) {
	if len(buf) < recordHeaderSize {
		return decodedRecord{}, 0, fmt.Errorf("disk: truncated record header (%d bytes available)", len(buf))
	}
	length := binary.LittleEndian.Uint32(buf[0:4])
	wantCRC := binary.LittleEndian.Uint32(buf[4:8])
	id := binary.LittleEndian.Uint64(buf[8:16])

	total := recordHeaderSize + int(length)
	if len(buf) < total {
		return decodedRecord{}, 0, fmt.Errorf("disk: truncated record payload (want %d, have %d)", total, len(buf))
	}
	payload := buf[16:total]

	h := crc32.New(crcTable)
	h.Write(buf[8:16])
	h.Write(payload)
	if h.Sum32() != wantCRC {
		return decodedRecord{}, 0, errTornRecord
	}
	return decodedRecord{ID: id, Payload: payload}, total, nil
}
