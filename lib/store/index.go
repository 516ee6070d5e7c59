package store

import (
	"fmt"
)

// Index is the composite identifier of a stored record.
// It is unique per stored object and stable for the object's lifetime.
type Index struct {
	Collection string
	Key        string
}

func (i Index) String() string {
	return fmt.Sprintf("%s/%s", i.Collection, i.Key)
}

// Validate returns a RetCInvalidOperation error for an index without a collection or key
func (i Index) Validate() error {
	if i.Collection == "" {
		return NewError(RetCInvalidOperation, fmt.Sprintf("invalid index %q: empty collection", i.String()))
	}
	if i.Key == "" {
		return NewError(RetCInvalidOperation, fmt.Sprintf("invalid index %q: empty key", i.String()))
	}
	return nil
}

// Record is a stored record as seen through a transaction accessor.
// Metadata is nil if the record carries no metadata.
type Record struct {
	Index    Index
	Object   []byte
	Metadata []byte
}

// HasMetadata reports whether the record carries metadata
func (r Record) HasMetadata() bool {
	return r.Metadata != nil
}
