package repo

import (
	"github.com/ValentinKolb/oKV/lib/store"
)

// Repository gives typed access to the values of one schema on a connection.
// Every public call runs in its own transaction.
//
// Thread-safety: A Repository is safe for concurrent use, it holds no mutable state.
type Repository[T Persistable] struct {
	conn   store.IConnection
	schema Schema[T]
}

// Option configures a Repository
type Option func(o *options)

type options struct {
	policy    DecodePolicy
	hasPolicy bool
}

// WithDecodePolicy overrides the decode policy of the schema
func WithDecodePolicy(policy DecodePolicy) Option {
	return func(o *options) {
		o.policy = policy
		o.hasPolicy = true
	}
}

// New creates a repository for the schema on conn
func New[T Persistable](conn store.IConnection, schema Schema[T], opts ...Option) *Repository[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasPolicy {
		schema.OnDecodeError = o.policy
	}
	return &Repository[T]{conn: conn, schema: schema}
}

// Schema returns the schema of the repository (including the effective decode policy)
func (r *Repository[T]) Schema() Schema[T] {
	return r.schema
}

// Connection returns the connection the repository runs on
func (r *Repository[T]) Connection() store.IConnection {
	return r.conn
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

// Write creates or replaces all items in one write transaction
func (r *Repository[T]) Write(items ...T) error {
	return r.conn.Write(func(tx store.WriteTransaction) error {
		return WriteIn(tx, r.schema, items...)
	})
}

// AsyncWrite queues one write transaction for all items.
// completion runs on exec after commit or failure.
func (r *Repository[T]) AsyncWrite(items []T, exec store.Executor, completion func(err error)) {
	items = append([]T(nil), items...)
	r.conn.AsyncWrite(func(tx store.WriteTransaction) error {
		return WriteIn(tx, r.schema, items...)
	}, exec, completion)
}

// AsyncRemove queues one write transaction removing all items.
// completion runs on exec after commit or failure.
func (r *Repository[T]) AsyncRemove(items []T, exec store.Executor, completion func(err error)) {
	items = append([]T(nil), items...)
	r.conn.AsyncWrite(func(tx store.WriteTransaction) error {
		return RemoveIn(tx, r.schema, items...)
	}, exec, completion)
}

// Remove removes all items in one write transaction. Missing items are ignored.
func (r *Repository[T]) Remove(items ...T) error {
	return r.conn.Write(func(tx store.WriteTransaction) error {
		return RemoveIn(tx, r.schema, items...)
	})
}

// RemoveByKeys removes the values with the given keys in one write transaction
func (r *Repository[T]) RemoveByKeys(keys ...string) error {
	return r.conn.Write(func(tx store.WriteTransaction) error {
		return RemoveByKeysIn(tx, r.schema, keys...)
	})
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// ReadAtIndex reads the value at index
func (r *Repository[T]) ReadAtIndex(index store.Index) (v T, ok bool, err error) {
	err = r.conn.Read(func(tx store.ReadTransaction) error {
		v, ok, err = ReadIn(tx, r.schema, index)
		return err
	})
	return v, ok, err
}

// ReadAtIndexes reads the values at indexes, dropping absent ones
func (r *Repository[T]) ReadAtIndexes(indexes []store.Index) ([]T, error) {
	return store.Read(r.conn, func(tx store.ReadTransaction) ([]T, error) {
		return ReadAtIndexesIn(tx, r.schema, indexes)
	})
}

// ReadByKey reads the value with the given key
func (r *Repository[T]) ReadByKey(key string) (T, bool, error) {
	return r.ReadAtIndex(r.schema.IndexWithKey(key))
}

// ReadByKeys reads the values with the given keys in key order, dropping absent ones
func (r *Repository[T]) ReadByKeys(keys []string) ([]T, error) {
	return r.ReadAtIndexes(r.schema.IndexesWithKeys(keys))
}

// ReadAll reads every value of the collection in key order
func (r *Repository[T]) ReadAll() ([]T, error) {
	return store.Read(r.conn, func(tx store.ReadTransaction) ([]T, error) {
		return ReadAllIn(tx, r.schema)
	})
}

// FilterExisting splits keys into the values that can be read and the keys without a value.
// Both results keep the order of keys.
func (r *Repository[T]) FilterExisting(keys []string) (existing []T, missing []string, err error) {
	err = r.conn.Read(func(tx store.ReadTransaction) error {
		existing, missing = nil, nil
		for _, key := range keys {
			v, ok, err := ReadByKeyIn(tx, r.schema, key)
			if err != nil {
				return err
			}
			if ok {
				existing = append(existing, v)
			} else {
				missing = append(missing, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return existing, missing, nil
}
