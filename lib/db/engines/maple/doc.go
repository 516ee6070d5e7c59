// Package maple implements an in-memory transactional key-value database (KVDB).
// It provides a complete implementation of the db.KVDB interface with a focus on
// concurrent reads, short commits and low memory overhead.
//
// The package focuses on:
//   - Optimized concurrent access through sharding and lock-free data structures
//   - Transactions with staged writes that are applied atomically on commit
//   - Portable snapshots through the shared db dump format
//   - Statistics about record sizes and shard distribution
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It owns the shards,
//     serializes write transactions and applies commits. Every commit increases a write
//     index, which is stored in each entry written by that commit.
//
//   - Shard: A partition of the database holding a subset of the record keys in an
//     xsync.MapOf. Records are addressed by (collection, key) and distributed across shards
//     using a seeded hash of both parts.
//
//   - Entry: The committed record (object and optional metadata) plus the write index of
//     the commit that produced it.
//
// Transactions:
//
//   - Read transactions (View) hold a shared commit lock for their whole duration. Any number
//     of read transactions can run in parallel, also while a write transaction is staging its
//     changes.
//
//   - Write transactions (Update) are serialized by a writer lock. Puts and deletes are staged
//     in an overlay map. Reads inside the write transaction see the committed state merged with
//     the overlay. When the callback returns nil the overlay is applied under the exclusive
//     commit lock. When it returns an error or panics the overlay is dropped.
//
//   - Keys and collections are collected by ranging over all shards and returned sorted
//     ascending.
//
// Sharding Strategy:
//
// Record keys are distributed across shards in a two-step process:
//  1. Collection and key are hashed with HashRecordKey (a zero byte between both parts)
//     using a database-specific seed
//  2. The integer key is right-shifted by 7 bits to use higher-quality bits for distribution
//
// Persistence:
//
// Maple keeps nothing on disk. Save and Load use the portable dump format of the db package,
// so a snapshot taken from maple can be loaded into any other engine and vice versa.
package maple
