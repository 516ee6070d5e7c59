package repo

import (
	"github.com/ValentinKolb/oKV/lib/store"
)

// --------------------------------------------------------------------------
// In-transaction helpers
// --------------------------------------------------------------------------
//
// The helpers compose inside one transaction. They never keep tx past return.

// WriteIn creates or replaces every item
func WriteIn[T Persistable](tx store.WriteTransaction, s Schema[T], items ...T) error {
	for _, item := range items {
		object, metadata, err := s.encode(item)
		if err != nil {
			return err
		}
		if err := tx.WriteAtIndex(s.Index(item), object, metadata); err != nil {
			return err
		}
	}
	return nil
}

// ReadIn reads the value at index. ok is false if it is absent or skipped.
func ReadIn[T Persistable](tx store.ReadTransaction, s Schema[T], index store.Index) (T, bool, error) {
	var zero T
	rec, ok, err := tx.ReadRecordAtIndex(index)
	if err != nil || !ok {
		return zero, false, err
	}
	return s.decode(rec)
}

// ReadAtIndexesIn reads every index and drops absent values. The result keeps the order of indexes.
func ReadAtIndexesIn[T Persistable](tx store.ReadTransaction, s Schema[T], indexes []store.Index) ([]T, error) {
	records, err := tx.ReadAtIndexes(indexes)
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(records))
	for _, rec := range records {
		v, ok, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// ReadByKeyIn reads the value with the given key
func ReadByKeyIn[T Persistable](tx store.ReadTransaction, s Schema[T], key string) (T, bool, error) {
	return ReadIn(tx, s, s.IndexWithKey(key))
}

// ReadByKeysIn reads the values with the given keys, dropping absent ones
func ReadByKeysIn[T Persistable](tx store.ReadTransaction, s Schema[T], keys []string) ([]T, error) {
	return ReadAtIndexesIn(tx, s, s.IndexesWithKeys(keys))
}

// ReadAllIn reads every value of the schema's collection in key order
func ReadAllIn[T Persistable](tx store.ReadTransaction, s Schema[T]) ([]T, error) {
	keys, err := tx.KeysInCollection(s.Collection)
	if err != nil {
		return nil, err
	}
	return ReadByKeysIn(tx, s, keys)
}

// RemoveIn removes every item. Missing items are ignored.
func RemoveIn[T Persistable](tx store.WriteTransaction, s Schema[T], items ...T) error {
	indexes := make([]store.Index, len(items))
	for i, item := range items {
		indexes[i] = s.Index(item)
	}
	return tx.RemoveAtIndexes(indexes)
}

// RemoveByKeysIn removes the values with the given keys. Missing keys are ignored.
func RemoveByKeysIn[T Persistable](tx store.WriteTransaction, s Schema[T], keys ...string) error {
	return tx.RemoveAtIndexes(s.IndexesWithKeys(keys))
}
