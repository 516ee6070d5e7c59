package maple

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/oKV/lib/db/util"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory transactional database with sharded data
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Write index of the last commit

	// writeMu serializes write transactions (one writer at a time).
	// commitMu is held shared by read transactions and exclusively while a commit is applied,
	// so readers never observe a partially applied commit.
	writeMu  sync.Mutex
	commitMu sync.RWMutex

	closed atomic.Bool
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	newDB := &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
	}
	newDB.shards = newDB.createShards()
	newDB.currIndex.Store(0)

	return newDB
}

func (maple *mapleImpl) createShards() []*internal.Shard {
	hasher := createRecordHasher()
	shards := make([]*internal.Shard, maple.numShards)
	for i := 0; i < maple.numShards; i++ {
		shards[i] = internal.NewShard(hasher)
	}
	return shards
}

// createRecordHasher creates the hash function used inside the shard maps
func createRecordHasher() func(internal.RecordKey, uint64) uint64 {
	return func(key internal.RecordKey, mapSeed uint64) uint64 {
		return uint64(key.Hash(mapSeed))
	}
}

// shardFor returns the shard responsible for a record key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(key internal.RecordKey) *internal.Shard {
	return internal.GetShard(key.Hash(maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Transactions
// --------------------------------------------------------------------------

// View runs fn inside a read transaction.
// Commits wait until all running read transactions have finished, so a read transaction
// sees one consistent state.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) View(fn func(tx db.ReadTx) error) error {
	if maple.closed.Load() {
		return fmt.Errorf("maple: database is closed")
	}

	maple.commitMu.RLock()
	defer maple.commitMu.RUnlock()

	return fn(&readTx{maple: maple})
}

// Update runs fn inside a write transaction.
// All writes are staged and only applied (atomically for readers) if fn returns nil.
// If fn panics nothing is applied and the panic is propagated.
//
// Thread-safety: This method is thread-safe. Write transactions are serialized.
func (maple *mapleImpl) Update(fn func(tx db.WriteTx) error) error {
	if maple.closed.Load() {
		return fmt.Errorf("maple: database is closed")
	}

	maple.writeMu.Lock()
	defer maple.writeMu.Unlock()

	tx := &writeTx{
		readTx:  readTx{maple: maple},
		pending: make(map[internal.RecordKey]internal.Pending),
	}
	if err := fn(tx); err != nil {
		return err
	}

	maple.commit(tx.pending)
	return nil
}

// commit applies all pending changes under the exclusive commit lock
//
// Thread-safety: must only be called by the goroutine holding writeMu
func (maple *mapleImpl) commit(pending map[internal.RecordKey]internal.Pending) {
	if len(pending) == 0 {
		return
	}

	maple.commitMu.Lock()
	defer maple.commitMu.Unlock()

	writeIndex := maple.currIndex.Add(1)
	for key, p := range pending {
		shard := maple.shardFor(key)
		if p.Deleted {
			shard.Data.Delete(key)
			continue
		}
		shard.Data.Store(key, internal.Entry{
			Record: p.Record,
			Index:  writeIndex,
		})
	}
}

// --------------------------------------------------------------------------
// Read transaction
// --------------------------------------------------------------------------

type readTx struct {
	maple *mapleImpl
}

func (tx *readTx) Get(collection, key string) (db.Record, bool, error) {
	rk := internal.RecordKey{Collection: collection, Key: key}
	entry, ok := tx.maple.shardFor(rk).Data.Load(rk)
	if !ok {
		return db.Record{}, false, nil
	}
	return entry.Record.Clone(), true, nil
}

func (tx *readTx) Keys(collection string) ([]string, error) {
	var keys []string
	for _, shard := range tx.maple.shards {
		shard.Data.Range(func(key internal.RecordKey, _ internal.Entry) bool {
			if key.Collection == collection {
				keys = append(keys, key.Key)
			}
			return true
		})
	}
	sort.Strings(keys)
	return keys, nil
}

func (tx *readTx) Collections() ([]string, error) {
	seen := make(map[string]struct{})
	for _, shard := range tx.maple.shards {
		shard.Data.Range(func(key internal.RecordKey, _ internal.Entry) bool {
			seen[key.Collection] = struct{}{}
			return true
		})
	}
	return sortedNames(seen), nil
}

// --------------------------------------------------------------------------
// Write transaction (committed state + staged changes)
// --------------------------------------------------------------------------

type writeTx struct {
	readTx
	pending map[internal.RecordKey]internal.Pending
}

func (tx *writeTx) Get(collection, key string) (db.Record, bool, error) {
	rk := internal.RecordKey{Collection: collection, Key: key}
	if p, ok := tx.pending[rk]; ok {
		if p.Deleted {
			return db.Record{}, false, nil
		}
		return p.Record.Clone(), true, nil
	}
	return tx.readTx.Get(collection, key)
}

func (tx *writeTx) Keys(collection string) ([]string, error) {
	committed, err := tx.readTx.Keys(collection)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(committed))
	for _, k := range committed {
		set[k] = struct{}{}
	}
	for rk, p := range tx.pending {
		if rk.Collection != collection {
			continue
		}
		if p.Deleted {
			delete(set, rk.Key)
		} else {
			set[rk.Key] = struct{}{}
		}
	}
	return sortedNames(set), nil
}

func (tx *writeTx) Collections() ([]string, error) {
	committed, err := tx.readTx.Collections()
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]struct{}, len(committed))
	for _, c := range committed {
		candidates[c] = struct{}{}
	}
	for rk := range tx.pending {
		candidates[rk.Collection] = struct{}{}
	}

	// a collection only counts if it still has keys after the staged changes
	result := make(map[string]struct{}, len(candidates))
	for c := range candidates {
		keys, err := tx.Keys(c)
		if err != nil {
			return nil, err
		}
		if len(keys) > 0 {
			result[c] = struct{}{}
		}
	}
	return sortedNames(result), nil
}

func (tx *writeTx) Put(collection, key string, record db.Record) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	rk := internal.RecordKey{Collection: collection, Key: key}
	// Copy value to prevent memory corruption
	tx.pending[rk] = internal.Pending{Record: record.Clone()}
	return nil
}

func (tx *writeTx) Delete(collection, key string) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	rk := internal.RecordKey{Collection: collection, Key: key}
	tx.pending[rk] = internal.Pending{Deleted: true}
	return nil
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer using the portable dump format.
//
// Thread-safety: Save runs inside a read transaction and can run concurrently with other reads.
func (maple *mapleImpl) Save(w io.Writer) error {
	return maple.View(func(tx db.ReadTx) error {
		return db.WriteDump(w, tx)
	})
}

// Load replaces the database content with the dump read from r.
// The dump is validated completely before anything is replaced.
//
// Thread-safety: Load runs inside a single write transaction.
func (maple *mapleImpl) Load(r io.Reader) error {
	entries, err := db.ReadDump(r)
	if err != nil {
		return err
	}
	return maple.Update(func(tx db.WriteTx) error {
		return db.RestoreDump(tx, entries)
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()
	shardSizes := make([]float64, len(maple.shards))
	collections := make(map[string]struct{})

	maple.commitMu.RLock()
	for i, shard := range maple.shards {
		shard.Data.Range(func(key internal.RecordKey, entry internal.Entry) bool {
			histogram.AddSample(entry.SizeBytes())
			collections[key.Collection] = struct{}{}
			return true
		})
		shardSizes[i] = float64(shard.Data.Size())
	}
	maple.commitMu.RUnlock()
	records := int(histogram.GetCount())

	// calculate size
	entryOverhead := 40 // write index, key strings headers, metadata flag
	sizeBytes := records * (histogram.AverageSize() + entryOverhead)

	// Metadata for this specific database implementation
	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		MedianRecordSize  int                    `json:"median_record_size"`
		Info              string                 `json:"info"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		MedianRecordSize:  histogram.MedianEstimate(),
		Info:              "SizeBytes is an estimate based on the average record size.",
	}

	return db.DatabaseInfo{
		SizeBytes:   sizeBytes,
		Records:     records,
		Collections: len(collections),
		DbType:      db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureRead, db.FeatureWrite, db.FeatureDelete, db.FeatureKeys,
			db.FeatureSave, db.FeatureLoad, db.FeatureSnapshotReads, db.FeatureIsolatedReads,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureRead |
		db.FeatureWrite |
		db.FeatureDelete |
		db.FeatureKeys |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureSnapshotReads |
		db.FeatureIsolatedReads
	return supportedFeatures&feature == feature
}

// Close marks the database as closed. All data is dropped with the instance.
func (maple *mapleImpl) Close() error {
	maple.closed.Store(true)
	return nil
}
