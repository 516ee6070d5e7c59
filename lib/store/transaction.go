package store

import (
	"github.com/ValentinKolb/oKV/lib/db"
)

// --------------------------------------------------------------------------
// Transaction accessors
// --------------------------------------------------------------------------

// ReadTransaction gives index based read access inside one transaction.
// It must not be used after the callback it was passed to returned.
type ReadTransaction interface {
	// ReadAtIndex returns the object bytes stored at index, false if absent
	ReadAtIndex(index Index) (object []byte, ok bool, err error)
	// ReadMetadataAtIndex returns the metadata bytes stored at index.
	// false if the record is absent or carries no metadata.
	ReadMetadataAtIndex(index Index) (metadata []byte, ok bool, err error)
	// ReadRecordAtIndex returns object and metadata in one lookup
	ReadRecordAtIndex(index Index) (record Record, ok bool, err error)
	// ReadAtIndexes reads every index and drops absent ones. The result keeps the order of indexes.
	ReadAtIndexes(indexes []Index) (records []Record, err error)
	// KeysInCollection returns every key of the collection in ascending order
	KeysInCollection(collection string) (keys []string, err error)
	// Collections returns the names of all non-empty collections in ascending order
	Collections() (collections []string, err error)
}

// WriteTransaction adds index based write access to ReadTransaction.
// Reads observe the writes made earlier in the same transaction.
type WriteTransaction interface {
	ReadTransaction
	// WriteAtIndex creates or replaces the full record at index. A nil metadata stores no metadata.
	WriteAtIndex(index Index, object, metadata []byte) (err error)
	// RemoveAtIndexes removes every named record. Missing records are ignored.
	RemoveAtIndexes(indexes []Index) (err error)
}

// NewReadTransaction wraps an engine read transaction
func NewReadTransaction(tx db.ReadTx) ReadTransaction {
	return &readAccessor{tx: tx}
}

// NewWriteTransaction wraps an engine write transaction
func NewWriteTransaction(tx db.WriteTx) WriteTransaction {
	return &writeAccessor{readAccessor: readAccessor{tx: tx}, tx: tx}
}

type readAccessor struct {
	tx db.ReadTx
}

func (r *readAccessor) ReadRecordAtIndex(index Index) (Record, bool, error) {
	rec, ok, err := r.tx.Get(index.Collection, index.Key)
	if err != nil {
		return Record{}, false, wrapError("read "+index.String(), err)
	}
	if !ok {
		return Record{}, false, nil
	}
	return Record{Index: index, Object: rec.Object, Metadata: rec.Metadata}, true, nil
}

func (r *readAccessor) ReadAtIndex(index Index) ([]byte, bool, error) {
	rec, ok, err := r.ReadRecordAtIndex(index)
	if !ok || err != nil {
		return nil, false, err
	}
	return rec.Object, true, nil
}

func (r *readAccessor) ReadMetadataAtIndex(index Index) ([]byte, bool, error) {
	rec, ok, err := r.ReadRecordAtIndex(index)
	if !ok || err != nil || !rec.HasMetadata() {
		return nil, false, err
	}
	return rec.Metadata, true, nil
}

func (r *readAccessor) ReadAtIndexes(indexes []Index) ([]Record, error) {
	records := make([]Record, 0, len(indexes))
	for _, index := range indexes {
		rec, ok, err := r.ReadRecordAtIndex(index)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *readAccessor) KeysInCollection(collection string) ([]string, error) {
	keys, err := r.tx.Keys(collection)
	if err != nil {
		return nil, wrapError("keys of "+collection, err)
	}
	return keys, nil
}

func (r *readAccessor) Collections() ([]string, error) {
	collections, err := r.tx.Collections()
	if err != nil {
		return nil, wrapError("collections", err)
	}
	return collections, nil
}

type writeAccessor struct {
	readAccessor
	tx db.WriteTx
}

func (w *writeAccessor) WriteAtIndex(index Index, object, metadata []byte) error {
	if err := index.Validate(); err != nil {
		return err
	}
	if object == nil {
		object = []byte{}
	}
	err := w.tx.Put(index.Collection, index.Key, db.Record{Object: object, Metadata: metadata})
	return wrapError("write "+index.String(), err)
}

func (w *writeAccessor) RemoveAtIndexes(indexes []Index) error {
	for _, index := range indexes {
		if err := index.Validate(); err != nil {
			return err
		}
		if err := w.tx.Delete(index.Collection, index.Key); err != nil {
			return wrapError("remove "+index.String(), err)
		}
	}
	return nil
}
