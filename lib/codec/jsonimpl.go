package codec

import (
	"encoding/json"
)

// JSON returns a codec using encoding/json
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

// jsonCodec implements the Codec interface using json encoding
type jsonCodec[T any] struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.Codec)
// --------------------------------------------------------------------------

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		var zero T
		return zero, decodeError("json", err)
	}
	return v, nil
}

func (jsonCodec[T]) Name() string { return "json" }
