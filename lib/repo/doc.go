// Package repo provides typed access to the object store.
//
// A Schema binds a domain type to a collection, an object codec and an optional
// metadata codec. Values produce their key through the Persistable interface, so
// the Index of a value is (Schema.Collection, value.Identifier()).
//
// Two layers are offered:
//
//   - In-transaction helpers (WriteIn, ReadIn, ReadAllIn, RemoveIn, ...) that compose
//     inside a transaction opened by the caller, for example to read one collection
//     and write another atomically.
//
//   - Repository, bound to a store.IConnection, where every public call is exactly
//     one transaction. Batch calls are one transaction per call, async calls one
//     queued transaction per call.
//
// Absent records are dropped from batch results. Records that cannot be decoded are
// handled by the DecodePolicy: DecodeSkip (default) treats them as absent, logs a
// warning and counts them in okv_decode_failures_total; DecodeFail returns an error
// wrapping codec.ErrDecode.
package repo
