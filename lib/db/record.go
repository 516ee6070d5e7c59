package db

import (
	"encoding/binary"
	"fmt"
)

// Bit flags of the record header byte
const (
	recordHasMetadata byte = 1 << 0
)

// EncodeRecord frames a record into a single byte slice for engines that store one value per key.
// Format:
// 1 byte flags,
// 4 bytes object length (big endian),
// N bytes object data,
// N bytes metadata (only if the metadata flag is set)
func EncodeRecord(r Record) []byte {
	size := 1 + 4 + len(r.Object)
	if r.Metadata != nil {
		size += len(r.Metadata)
	}
	result := make([]byte, size)

	if r.Metadata != nil {
		result[0] |= recordHasMetadata
	}
	binary.BigEndian.PutUint32(result[1:5], uint32(len(r.Object)))
	copy(result[5:5+len(r.Object)], r.Object)
	if r.Metadata != nil {
		copy(result[5+len(r.Object):], r.Metadata)
	}
	return result
}

// DecodeRecord extracts a record framed with EncodeRecord.
// The returned record does not share memory with data.
func DecodeRecord(data []byte) (Record, error) {
	// Minimum size: 1 (flags) + 4 (object length)
	if len(data) < 5 {
		return Record{}, fmt.Errorf("record too short: %d bytes", len(data))
	}
	flags := data[0]
	objLen := binary.BigEndian.Uint32(data[1:5])
	if uint64(len(data)) < 5+uint64(objLen) {
		return Record{}, fmt.Errorf("record too short for object of length %d", objLen)
	}

	r := Record{Object: make([]byte, objLen)}
	copy(r.Object, data[5:5+objLen])

	rest := data[5+objLen:]
	if flags&recordHasMetadata != 0 {
		r.Metadata = make([]byte, len(rest))
		copy(r.Metadata, rest)
	} else if len(rest) > 0 {
		return Record{}, fmt.Errorf("unexpected %d trailing bytes in record without metadata", len(rest))
	}
	return r, nil
}
