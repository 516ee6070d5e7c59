package codec

import (
	"errors"
	"fmt"
)

// ErrDecode is wrapped by every error a codec returns for bytes it cannot decode
// (malformed data, a different format version, a failing unmarshaler).
var ErrDecode = errors.New("codec: cannot decode value")

// Codec converts values of type T to bytes and back.
// Implementations are stateless and safe for concurrent use.
type Codec[T any] interface {
	// Encode converts v to its byte representation
	Encode(v T) ([]byte, error)
	// Decode converts b back to a value.
	// The returned error wraps ErrDecode if b is not a valid encoding.
	// Decode never panics on bad input.
	Decode(b []byte) (T, error)
	// Name returns the short name of the format ("json", "gob", ...)
	Name() string
}

// Names lists the codec names accepted by ByName
var Names = []string{"json", "gob", "binary"}

// ByName returns the codec with the given name for T.
// "binary" requires *T to implement encoding.BinaryMarshaler and encoding.BinaryUnmarshaler.
func ByName[T any](name string) (Codec[T], error) {
	switch name {
	case "json":
		return JSON[T](), nil
	case "gob":
		return GOB[T](), nil
	case "binary":
		if !supportsBinary[T]() {
			var zero T
			return nil, fmt.Errorf("codec: %T does not implement encoding.BinaryMarshaler/BinaryUnmarshaler", zero)
		}
		return binaryCodec[T]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q (expected one of %v)", name, Names)
	}
}

// decodeError wraps err as a decode error of the named codec
func decodeError(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
}
