package dstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/ValentinKolb/oKV/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// NodeHost is the part of *dragonboat.NodeHost used by the distributed engine
type NodeHost interface {
	SyncPropose(ctx context.Context, session *client.Session, cmd []byte) (sm.Result, error)
	SyncRead(ctx context.Context, shardID uint64, query interface{}) (interface{}, error)
	StaleRead(shardID uint64, query interface{}) (interface{}, error)
	GetNoOPSession(shardID uint64) *client.Session
}

// distributedDB is a db.KVDB whose committed state lives in a RAFT replicated state machine.
// Write transactions are staged locally and proposed as one command on commit.
type distributedDB struct {
	nh      NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration

	writeMu sync.Mutex // one write transaction per client at a time
	closed  atomic.Bool
}

// NewDistributedDB creates a new engine that uses raft consensus to replicate every committed
// write transaction to all replicas of the shard. The node host must already run the shard
// with a state machine created by CreateStateMachineFactory.
//
// Every read is linearizable, but the reads of one read transaction are separate queries and
// may observe different commits, so the engine does not report db.FeatureIsolatedReads.
func NewDistributedDB(nh NodeHost, shardID uint64, timeout time.Duration) db.KVDB {
	cs := nh.GetNoOPSession(shardID)
	return &distributedDB{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write serializes a Command and sends it via SyncPropose.
// It returns a *store.Error if an error occurs, or nil on success.
func (d *distributedDB) write(cmd internal.Command) error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)

		res, err := d.nh.SyncPropose(ctx, d.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(d.timeout / 10)
			continue
		}

		if err != nil {
			return store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return store.NewError(store.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// This function uses SyncRead by default to query the state machine.
// If linearizability is not required, stale can be set to true to use the faster StaleRead.
//
// If the read fails due to a system busy error, the function retries up to 5 times.
func read[R any](d *distributedDB, q internal.Query, stale bool) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {

		var res interface{}
		var err error

		if stale {
			res, err = d.nh.StaleRead(d.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			res, err = d.nh.SyncRead(ctx, d.shardID, q)
			cancel()
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(d.timeout / 10)
			continue
		}

		if err != nil {
			var se *store.Error
			if errors.As(err, &se) {
				return zero, se
			}
			return zero, store.NewError(store.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, store.NewError(store.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Interface Methods (docs see db/db.go)
// --------------------------------------------------------------------------

func (d *distributedDB) View(fn func(tx db.ReadTx) error) error {
	if d.closed.Load() {
		return fmt.Errorf("dstore: database is closed")
	}
	return fn(&readTx{d: d})
}

func (d *distributedDB) Update(fn func(tx db.WriteTx) error) error {
	if d.closed.Load() {
		return fmt.Errorf("dstore: database is closed")
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx := &writeTx{
		readTx:  readTx{d: d},
		pending: make(map[recordKey]int),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// read-only transactions are not proposed
	if len(tx.ops) == 0 {
		return nil
	}
	return d.write(internal.Command{Ops: tx.ops})
}

func (d *distributedDB) Save(w io.Writer) error {
	dump, err := read[[]byte](d, internal.Query{Type: internal.QueryTDump}, false)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(dump))
	return err
}

// Load validates the dump locally and replicates its content as one command.
func (d *distributedDB) Load(r io.Reader) error {
	entries, err := db.ReadDump(r)
	if err != nil {
		return err
	}
	return d.Update(func(tx db.WriteTx) error {
		return db.RestoreDump(tx, entries)
	})
}

func (d *distributedDB) features() []db.Feature {
	return []db.Feature{
		db.FeatureRead, db.FeatureWrite, db.FeatureDelete, db.FeatureKeys,
		db.FeatureSave, db.FeatureLoad, db.FeatureSnapshotReads, db.FeaturePersistent,
	}
}

func (d *distributedDB) SupportsFeature(feature db.Feature) bool {
	var supported db.Feature
	for _, f := range d.features() {
		supported |= f
	}
	return supported&feature == feature
}

// GetInfo returns the info of the local replica. The info may be stale.
func (d *distributedDB) GetInfo() db.DatabaseInfo {
	info, err := read[db.DatabaseInfo](d, internal.Query{Type: internal.QueryTGetDBInfo}, true)
	if err != nil {
		log.Warningf("GetInfo: failed to query replica: %v", err)
		return db.DatabaseInfo{DbType: db.ImplRaft, SupportedFeatures: d.features()}
	}

	info.Metadata = &struct {
		ShardID        uint64            `json:"shard_id"`
		ReplicaEngine  db.Implementation `json:"replica_engine"`
		ReplicaDetails interface{}       `json:"replica_details"`
	}{
		ShardID:        d.shardID,
		ReplicaEngine:  info.DbType,
		ReplicaDetails: info.Metadata,
	}
	info.DbType = db.ImplRaft
	info.SupportedFeatures = d.features()
	return info
}

// Close marks the client as closed. The node host is owned by the caller and stays running.
func (d *distributedDB) Close() error {
	d.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Read transaction (every read is one linearizable query)
// --------------------------------------------------------------------------

type recordKey struct {
	collection string
	key        string
}

type readTx struct {
	d *distributedDB
}

func (tx *readTx) Get(collection, key string) (db.Record, bool, error) {
	res, err := read[internal.QueryResult](tx.d, internal.Query{
		Type:       internal.QueryTGet,
		Collection: collection,
		Key:        key,
	}, false)
	if err != nil {
		return db.Record{}, false, err
	}
	return res.Record, res.Ok, nil
}

func (tx *readTx) Keys(collection string) ([]string, error) {
	return read[[]string](tx.d, internal.Query{Type: internal.QueryTKeys, Collection: collection}, false)
}

func (tx *readTx) Collections() ([]string, error) {
	return read[[]string](tx.d, internal.Query{Type: internal.QueryTCollections}, false)
}

// --------------------------------------------------------------------------
// Write transaction (committed state + staged ops)
// --------------------------------------------------------------------------

type writeTx struct {
	readTx
	ops     []internal.Op
	pending map[recordKey]int // index of the latest op per record in ops
}

func (tx *writeTx) stage(op internal.Op) {
	rk := recordKey{collection: op.Collection, key: op.Key}
	if i, ok := tx.pending[rk]; ok {
		tx.ops[i] = op
		return
	}
	tx.pending[rk] = len(tx.ops)
	tx.ops = append(tx.ops, op)
}

func (tx *writeTx) Get(collection, key string) (db.Record, bool, error) {
	if i, ok := tx.pending[recordKey{collection: collection, key: key}]; ok {
		op := tx.ops[i]
		if op.Type == internal.OpTDelete {
			return db.Record{}, false, nil
		}
		return op.Record.Clone(), true, nil
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
	for _, op := range tx.ops {
		if op.Collection != collection {
			continue
		}
		if op.Type == internal.OpTDelete {
			delete(set, op.Key)
		} else {
			set[op.Key] = struct{}{}
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
	for _, op := range tx.ops {
		candidates[op.Collection] = struct{}{}
	}

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
	tx.stage(internal.Op{Type: internal.OpTPut, Collection: collection, Key: key, Record: record.Clone()})
	return nil
}

func (tx *writeTx) Delete(collection, key string) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	tx.stage(internal.Op{Type: internal.OpTDelete, Collection: collection, Key: key})
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
