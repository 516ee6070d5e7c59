package codec

import (
	"fmt"
)

// Versioned wraps inner and prefixes every encoding with a format version byte.
// Decoding bytes with any other version fails with ErrDecode, so stored values of an
// older layout are reported instead of being decoded into the wrong shape.
func Versioned[T any](version byte, inner Codec[T]) Codec[T] {
	return versionedCodec[T]{version: version, inner: inner}
}

type versionedCodec[T any] struct {
	version byte
	inner   Codec[T]
}

func (c versionedCodec[T]) Encode(v T) ([]byte, error) {
	payload, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, c.version)
	return append(out, payload...), nil
}

func (c versionedCodec[T]) Decode(b []byte) (T, error) {
	var zero T
	if len(b) == 0 {
		return zero, decodeError(c.Name(), fmt.Errorf("missing version byte"))
	}
	if b[0] != c.version {
		return zero, decodeError(c.Name(), fmt.Errorf("version %d, expected %d", b[0], c.version))
	}
	return c.inner.Decode(b[1:])
}

func (c versionedCodec[T]) Name() string {
	return fmt.Sprintf("%s/v%d", c.inner.Name(), c.version)
}
