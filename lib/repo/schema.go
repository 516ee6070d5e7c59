package repo

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/codec"
	"github.com/ValentinKolb/oKV/lib/common"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("repo")

// Persistable is a domain value with a stable identifier.
// The identifier is the key of the value inside its collection.
type Persistable interface {
	Identifier() string
}

// --------------------------------------------------------------------------
// Decode policy
// --------------------------------------------------------------------------

// DecodePolicy decides what happens with records that cannot be decoded
type DecodePolicy uint8

const (
	DecodeSkip DecodePolicy = iota // treat the record as absent, log a warning and count it
	DecodeFail                     // fail the read with an error wrapping codec.ErrDecode
)

func (p DecodePolicy) String() string {
	switch p {
	case DecodeSkip:
		return "skip"
	case DecodeFail:
		return "fail"
	default:
		return fmt.Sprintf("DecodePolicy(%d)", p)
	}
}

// ParseDecodePolicy parses "skip" or "fail"
func ParseDecodePolicy(s string) (DecodePolicy, error) {
	switch s {
	case "skip":
		return DecodeSkip, nil
	case "fail":
		return DecodeFail, nil
	default:
		return DecodeSkip, fmt.Errorf("invalid decode policy %q (expected skip or fail)", s)
	}
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

// MetadataCodec stores a part of T next to the object as record metadata.
// Create it with WithMetadata.
type MetadataCodec[T any] struct {
	name   string
	encode func(v T) ([]byte, error) // nil result means no metadata
	attach func(v *T, data []byte) error
}

// WithMetadata declares metadata of type M for values of type T.
// get returns the metadata of a value and false if it carries none.
// set attaches decoded metadata to a value read from the store.
func WithMetadata[T any, M any](get func(v T) (M, bool), set func(v *T, m M), c codec.Codec[M]) *MetadataCodec[T] {
	return &MetadataCodec[T]{
		name: c.Name(),
		encode: func(v T) ([]byte, error) {
			m, ok := get(v)
			if !ok {
				return nil, nil
			}
			data, err := c.Encode(m)
			if err != nil {
				return nil, err
			}
			if data == nil {
				data = []byte{}
			}
			return data, nil
		},
		attach: func(v *T, data []byte) error {
			m, err := c.Decode(data)
			if err != nil {
				return err
			}
			set(v, m)
			return nil
		},
	}
}

// Name returns the name of the metadata codec
func (m *MetadataCodec[T]) Name() string {
	return m.name
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// Schema describes how values of T are stored: the collection they live in,
// the codec for the object and an optional metadata codec.
type Schema[T Persistable] struct {
	Collection    string
	Codec         codec.Codec[T]
	Metadata      *MetadataCodec[T] // nil if T carries no metadata
	OnDecodeError DecodePolicy
}

// IndexWithKey returns the index of the value with the given key
func (s Schema[T]) IndexWithKey(key string) store.Index {
	return store.Index{Collection: s.Collection, Key: key}
}

// IndexesWithKeys returns the indexes of the values with the given keys, in order
func (s Schema[T]) IndexesWithKeys(keys []string) []store.Index {
	indexes := make([]store.Index, len(keys))
	for i, key := range keys {
		indexes[i] = s.IndexWithKey(key)
	}
	return indexes
}

// Index returns the index of v
func (s Schema[T]) Index(v T) store.Index {
	return s.IndexWithKey(v.Identifier())
}

// encode returns object and metadata bytes of v
func (s Schema[T]) encode(v T) (object, metadata []byte, err error) {
	if object, err = s.Codec.Encode(v); err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", s.Index(v), err)
	}
	if s.Metadata != nil {
		if metadata, err = s.Metadata.encode(v); err != nil {
			return nil, nil, fmt.Errorf("encode metadata of %s: %w", s.Index(v), err)
		}
	}
	return object, metadata, nil
}

// decode turns a record into a value according to the decode policy.
// ok is false if the record was skipped.
func (s Schema[T]) decode(rec store.Record) (v T, ok bool, err error) {
	v, err = s.Codec.Decode(rec.Object)
	if err == nil && s.Metadata != nil && rec.HasMetadata() {
		err = s.Metadata.attach(&v, rec.Metadata)
	}
	if err == nil {
		return v, true, nil
	}

	var zero T
	if s.OnDecodeError == DecodeFail {
		return zero, false, fmt.Errorf("decode %s: %w", rec.Index, err)
	}
	log.Warningf("skipping record %s: %v", rec.Index, err)
	common.CountDecodeFailure(rec.Index.Collection)
	return zero, false, nil
}
