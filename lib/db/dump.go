package db

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Constants of the portable dump format shared by all engines
const (
	dumpMagicNum = "OKVDUMP\x00" // File format identifier
	dumpVersion  = 1             // Dump format version
)

// DumpEntry is a single record read from a dump.
type DumpEntry struct {
	Collection string
	Key        string
	Record     Record
}

// WriteDump writes every record visible in tx to w.
// Engines call this from their Save method inside a read transaction, so the
// dump is a consistent snapshot.
func WriteDump(w io.Writer, tx ReadTx) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Collect all entries first, the count is part of the header
	var entries []DumpEntry
	collections, err := tx.Collections()
	if err != nil {
		return err
	}
	for _, collection := range collections {
		keys, err := tx.Keys(collection)
		if err != nil {
			return err
		}
		for _, key := range keys {
			rec, ok, err := tx.Get(collection, key)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			entries = append(entries, DumpEntry{Collection: collection, Key: key, Record: rec})
		}
	}

	// Write file header
	if _, err := bw.WriteString(dumpMagicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(dumpVersion)); err != nil {
		return err
	}

	// Write total entries count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := writeBytes(bw, []byte(e.Collection)); err != nil {
			return err
		}
		if err := writeBytes(bw, []byte(e.Key)); err != nil {
			return err
		}

		var flags uint8
		if e.Record.HasMetadata() {
			flags |= recordHasMetadata
		}
		if err := binary.Write(bw, binary.LittleEndian, flags); err != nil {
			return err
		}
		if err := writeBytes(bw, e.Record.Object); err != nil {
			return err
		}
		if e.Record.HasMetadata() {
			if err := writeBytes(bw, e.Record.Metadata); err != nil {
				return err
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// ReadDump reads and validates a complete dump.
// Nothing is returned if the dump is malformed.
func ReadDump(r io.Reader) ([]DumpEntry, error) {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(dumpMagicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return nil, err
	}
	if string(magicBytes) != dumpMagicNum {
		return nil, fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if int(version) != dumpVersion {
		return nil, fmt.Errorf("unsupported version: %d (expected %d)", version, dumpVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	entries := make([]DumpEntry, 0, min(count, 1<<16))
	for i := uint64(0); i < count; i++ {
		collection, err := readBytes(br)
		if err != nil {
			return nil, err
		}
		key, err := readBytes(br)
		if err != nil {
			return nil, err
		}

		var flags uint8
		if err := binary.Read(br, binary.LittleEndian, &flags); err != nil {
			return nil, err
		}
		object, err := readBytes(br)
		if err != nil {
			return nil, err
		}

		rec := Record{Object: object}
		if flags&recordHasMetadata != 0 {
			if rec.Metadata, err = readBytes(br); err != nil {
				return nil, err
			}
		}

		entries = append(entries, DumpEntry{
			Collection: string(collection),
			Key:        string(key),
			Record:     rec,
		})
	}
	return entries, nil
}

// RestoreDump replaces the content visible in tx with the given entries.
// Engines call this from their Load method inside a single write transaction.
func RestoreDump(tx WriteTx, entries []DumpEntry) error {
	collections, err := tx.Collections()
	if err != nil {
		return err
	}
	for _, collection := range collections {
		keys, err := tx.Keys(collection)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := tx.Delete(collection, key); err != nil {
				return err
			}
		}
	}

	for _, e := range entries {
		if err := tx.Put(e.Collection, e.Key, e.Record); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
