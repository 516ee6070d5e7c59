package codec

import (
	"encoding"
	"fmt"
)

// BinaryValue is satisfied by *T when T has a hand written binary format
type BinaryValue[T any] interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Binary returns a codec that delegates to the MarshalBinary/UnmarshalBinary methods of *T.
// This is the most compact format for types with a hand written encoding.
func Binary[T any, PT BinaryValue[T]]() Codec[T] {
	return binaryCodec[T]{}
}

// supportsBinary reports whether *T implements both binary interfaces
func supportsBinary[T any]() bool {
	_, ok := any(new(T)).(interface {
		encoding.BinaryMarshaler
		encoding.BinaryUnmarshaler
	})
	return ok
}

// binaryCodec implements the Codec interface using the binary methods of *T
type binaryCodec[T any] struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.Codec)
// --------------------------------------------------------------------------

func (binaryCodec[T]) Encode(v T) ([]byte, error) {
	m, ok := any(&v).(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement encoding.BinaryMarshaler", v)
	}
	return m.MarshalBinary()
}

func (binaryCodec[T]) Decode(b []byte) (v T, err error) {
	u, ok := any(&v).(encoding.BinaryUnmarshaler)
	if !ok {
		return v, decodeError("binary", fmt.Errorf("%T does not implement encoding.BinaryUnmarshaler", v))
	}

	// unmarshalers are user code, a panic on bad input is reported as a decode error
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, decodeError("binary", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := u.UnmarshalBinary(b); err != nil {
		var zero T
		return zero, decodeError("binary", err)
	}
	return v, nil
}

func (binaryCodec[T]) Name() string { return "binary" }
