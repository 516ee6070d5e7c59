package internal

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
)

// OpType defines the possible operations inside a command.
type OpType uint8

const (
	OpTPut    OpType = iota // Insert or replace a record.
	OpTDelete               // Delete a record.
)

func (ot OpType) String() string {
	switch ot {
	case OpTPut:
		return "Put"
	case OpTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ot)
	}
}

// ToDBFeature converts an OpType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ot OpType) ToDBFeature() (db.Feature, error) {
	switch ot {
	case OpTPut:
		return db.FeatureWrite, nil
	case OpTDelete:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown op type %d", ot)
	}
}

// Op is a single staged change of a write transaction
type Op struct {
	Type       OpType
	Collection string
	Key        string
	Record     db.Record // only used by OpTPut
}

// Command represents one committed write transaction (a single entry in the raft log).
// The ops are applied in order inside one transaction of the replica's engine.
type Command struct {
	Ops []Op
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 4 // op count
	for i := range command.Ops {
		size += command.Ops[i].sizeBytes()
	}
	return size
}

func (op *Op) sizeBytes() int {
	size := 1 + 4 + len(op.Collection) + 4 + len(op.Key) // Type + CollLen + Coll + KeyLen + Key
	if op.Type == OpTPut {
		size += 4 + recordSize(op.Record)
	}
	return size
}

func recordSize(r db.Record) int {
	size := 1 + 4 + len(r.Object)
	if r.Metadata != nil {
		size += len(r.Metadata)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 4 bytes for the op count (big endian),
// then for every op:
// 1 byte for the op type,
// 4 bytes for collection length (big endian),
// N bytes for collection data,
// 4 bytes for key length (big endian),
// N bytes for key data,
// and for put ops 4 bytes record length (big endian) followed by the record
// framed with db.EncodeRecord.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())
	binary.BigEndian.PutUint32(result[0:4], uint32(len(command.Ops)))
	offset := 4

	for i := range command.Ops {
		op := &command.Ops[i]
		result[offset] = byte(op.Type)
		offset++
		offset = putString(result, offset, op.Collection)
		offset = putString(result, offset, op.Key)
		if op.Type == OpTPut {
			encoded := db.EncodeRecord(op.Record)
			binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(encoded)))
			offset += 4
			offset += copy(result[offset:], encoded)
		}
	}
	return result
}

func putString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(s)))
	offset += 4
	return offset + copy(buf[offset:], s)
}

// Deserialize parses a byte array created with Serialize into the command.
// The command does not share memory with data afterwards.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("data too short for command")
	}
	count := binary.BigEndian.Uint32(data[0:4])
	offset := 4

	// every op needs at least 9 bytes, this bounds the allocation for corrupt counts
	if uint64(count)*9 > uint64(len(data)-offset) {
		return fmt.Errorf("data too short for %d ops", count)
	}

	ops := make([]Op, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset >= len(data) {
			return fmt.Errorf("data too short for op %d", i)
		}
		op := Op{Type: OpType(data[offset])}
		offset++
		if op.Type != OpTPut && op.Type != OpTDelete {
			return fmt.Errorf("unknown op type %d", op.Type)
		}

		var err error
		if op.Collection, offset, err = readString(data, offset, "collection"); err != nil {
			return err
		}
		if op.Key, offset, err = readString(data, offset, "key"); err != nil {
			return err
		}

		if op.Type == OpTPut {
			if len(data) < offset+4 {
				return fmt.Errorf("data too short for record length")
			}
			recLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
			if len(data) < offset+recLen {
				return fmt.Errorf("data too short for record of length %d", recLen)
			}
			if op.Record, err = db.DecodeRecord(data[offset : offset+recLen]); err != nil {
				return err
			}
			offset += recLen
		}
		ops = append(ops, op)
	}

	if offset != len(data) {
		return fmt.Errorf("unexpected %d trailing bytes after command", len(data)-offset)
	}
	command.Ops = ops
	return nil
}

func readString(data []byte, offset int, what string) (string, int, error) {
	if len(data) < offset+4 {
		return "", offset, fmt.Errorf("data too short for %s length", what)
	}
	n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+n {
		return "", offset, fmt.Errorf("data too short for %s of length %d", what, n)
	}
	return string(data[offset : offset+n]), offset + n, nil
}
