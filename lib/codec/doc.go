// Package codec converts typed domain values to the bytes stored by the engines and back.
//
// Key Components:
//
//   - Codec[T]: Core interface that all codecs satisfy (Encode, Decode, Name). Decode
//     reports invalid input with an error wrapping ErrDecode and never panics.
//
//   - JSON: encoding/json, human readable and the default of the CLI.
//
//   - GOB: Go's gob encoding, handles any exported Go type without tags.
//
//   - Binary: delegates to MarshalBinary/UnmarshalBinary of the value type. Compact
//     format for types with a hand written layout.
//
//   - Versioned: prefixes the inner encoding with a format version byte and rejects
//     bytes of any other version.
//
// ByName resolves a codec from its configured name ("json", "gob", "binary").
//
// Thread Safety:
//
//	All codecs are stateless and safe for concurrent use.
package codec
