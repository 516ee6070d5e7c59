package internal

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// RecordKey addresses a record (collection + key)
// --------------------------------------------------------------------------

type RecordKey struct {
	Collection string
	Key        string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s", k.Collection, k.Key)
}

// Hash returns the seeded hash of the record key
func (k RecordKey) Hash(seed uint64) util.UintKey {
	return util.HashRecordKey(k.Collection, k.Key, seed)
}

// --------------------------------------------------------------------------
// Entry Type (record with metadata)
// --------------------------------------------------------------------------

// Entry stores a record together with the write index of the commit that produced it
type Entry struct {
	Record db.Record // Object and metadata payload
	Index  uint64    // Write index of the commit that created/updated this entry
}

// SizeBytes is the payload size of the entry (object + metadata)
func (e Entry) SizeBytes() int {
	return len(e.Record.Object) + len(e.Record.Metadata)
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[RecordKey, Entry] // Map of committed records
}

// NewShard creates a new shard with the provided hash function
func NewShard(hasher func(RecordKey, uint64) uint64) *Shard {
	return &Shard{
		Data: xsync.NewMapOfWithHasher[RecordKey, Entry](hasher),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}

// --------------------------------------------------------------------------
// Pending writes of an open write transaction
// --------------------------------------------------------------------------

// Pending is a staged change of a write transaction.
// Deleted is true for a staged delete, otherwise Record holds the staged value.
type Pending struct {
	Record  db.Record
	Deleted bool
}
