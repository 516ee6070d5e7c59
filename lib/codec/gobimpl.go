package codec

import (
	"bytes"
	"encoding/gob"
)

// GOB returns a codec using Go's binary gob format.
// Each value is encoded as a self-describing stream (type information included).
func GOB[T any]() Codec[T] {
	return gobCodec[T]{}
}

// gobCodec implements the Codec interface using gob encoding
type gobCodec[T any] struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.Codec)
// --------------------------------------------------------------------------

func (gobCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec[T]) Decode(b []byte) (T, error) {
	var v T
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		var zero T
		return zero, decodeError("gob", err)
	}
	return v, nil
}

func (gobCodec[T]) Name() string { return "gob" }
