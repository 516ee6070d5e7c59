// Package db provides a standardized interface for transactional key-value database implementations.
// It defines the KVDB interface that the typed object store (see the store and repo packages)
// runs on, while abstracting implementation details of the concrete engines.
//
// The package focuses on:
//   - A unified, transaction-scoped interface for record access
//   - Feature discovery through capability flags
//   - A portable dump format shared by all engines
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     All access happens inside transactions: View runs a read transaction, Update runs
//     a write transaction that commits atomically when its callback returns nil and rolls
//     back otherwise. Only one write transaction may be active at a time.
//
//   - ReadTx / WriteTx: The operations available inside a transaction. Records are
//     addressed by a collection name and a key. Keys and collections can be enumerated
//     in ascending order, which is the documented ordering of all engines.
//
//   - Record: The stored unit, an opaque object payload plus optional metadata. A nil
//     metadata slice means "no metadata", an empty slice is a present but empty value.
//     EncodeRecord and DecodeRecord frame a record into one value for engines that
//     store a single byte slice per key.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Dump Format: WriteDump, ReadDump and RestoreDump implement a portable snapshot
//     format so that Save and Load behave identically on every engine and snapshots can
//     be moved between engines.
//
// Note on Transactions:
//   - Transactions must never be used outside of the callback they were passed to.
//   - Nesting Update inside Update on the same database deadlocks on all engines,
//     the same way it does in bbolt.
//   - Engines that advertise FeatureSnapshotReads let read transactions run while a
//     write transaction is active. Readers never observe a partially applied commit.
//
// Related Packages:
//
// The engines/maple package provides an in-memory engine based on sharded concurrent maps.
// The engines/bolt and engines/sqlite packages provide persistent engines on top of bbolt
// and SQLite. The store/dstore package provides a replicated engine using RAFT.
//
// The testing package provides the standardized test suite (RunKVDBTests) and benchmarks
// (RunKVDBBenchmarks) that every engine runs.
package db
