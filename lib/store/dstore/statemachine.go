package dstore

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/ValentinKolb/oKV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// KVStateMachine is a state machine implementation for Dragonboat RAFT.
// Every raft entry carries one committed write transaction which is applied to the
// local engine inside one write transaction.
type KVStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &KVStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  dbFactory(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to a read transaction on the local engine.
func (fsm *KVStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		var res internal.QueryResult
		err := fsm.database.View(func(tx db.ReadTx) error {
			var err error
			res.Record, res.Ok, err = tx.Get(q.Collection, q.Key)
			return err
		})
		return res, lookupError(err)
	case internal.QueryTKeys:
		if !fsm.database.SupportsFeature(db.FeatureKeys) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Keys operation is not supported")
		}
		var keys []string
		err := fsm.database.View(func(tx db.ReadTx) error {
			var err error
			keys, err = tx.Keys(q.Collection)
			return err
		})
		return keys, lookupError(err)
	case internal.QueryTCollections:
		if !fsm.database.SupportsFeature(db.FeatureKeys) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Collections operation is not supported")
		}
		var collections []string
		err := fsm.database.View(func(tx db.ReadTx) error {
			var err error
			collections, err = tx.Collections()
			return err
		})
		return collections, lookupError(err)
	case internal.QueryTDump:
		if !fsm.database.SupportsFeature(db.FeatureSave) {
			return nil, store.NewError(store.RetCUnsupportedOperation, "Save operation is not supported")
		}
		var buf bytes.Buffer
		if err := fsm.database.Save(&buf); err != nil {
			return nil, lookupError(err)
		}
		return buf.Bytes(), nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

func lookupError(err error) error {
	if err == nil {
		return nil
	}
	return store.NewError(store.RetCInternalError, err.Error())
}

// Update applies write commands on the KVDB instance.
// Each entry holds one serialized internal.Command, which is applied inside a single
// write transaction so every replica commits it atomically.
func (fsm *KVStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInternalError),
				Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
			}
			continue
		}

		entries[idx].Result = fsm.apply(&cmd)
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply runs all ops of one command in a single write transaction
func (fsm *KVStateMachine) apply(cmd *internal.Command) sm.Result {

	// Check if the db supports all operations of the command
	for _, op := range cmd.Ops {
		feat, err := op.Type.ToDBFeature()
		if err != nil {
			return sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", op.Type)),
			}
		}
		if !fsm.database.SupportsFeature(feat) {
			return sm.Result{
				Value: uint64(store.RetCUnsupportedOperation),
				Data:  []byte(fmt.Sprintf("%s operation is not supported", op.Type)),
			}
		}
	}

	err := fsm.database.Update(func(tx db.WriteTx) error {
		for _, op := range cmd.Ops {
			var err error
			if op.Type == internal.OpTPut {
				err = tx.Put(op.Collection, op.Key, op.Record)
			} else {
				err = tx.Delete(op.Collection, op.Key)
			}
			if err != nil {
				return fmt.Errorf("%s %s/%s: %w", op.Type, op.Collection, op.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		code := store.RetCInternalError
		if errors.Is(err, db.ErrInvalidCollection) || errors.Is(err, db.ErrInvalidKey) {
			code = store.RetCInvalidOperation
		}
		return sm.Result{Value: uint64(code), Data: []byte(err.Error())}
	}

	return sm.Result{
		Value: uint64(store.RetCSuccess),
		Data:  []byte(fmt.Sprintf("applied %d ops", len(cmd.Ops))),
	}
}

// PrepareSnapshot captures the engine content while updates are paused.
// SaveSnapshot runs concurrently with Update, so the dump has to be taken here.
func (fsm *KVStateMachine) PrepareSnapshot() (interface{}, error) {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return nil, fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	var buf bytes.Buffer
	if err := fsm.database.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveSnapshot writes the dump captured by PrepareSnapshot to the writer
func (fsm *KVStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	dump, ok := ctx.([]byte)
	if !ok {
		return fmt.Errorf("invalid snapshot context: %T", ctx)
	}
	_, err := writer.Write(dump)
	return err
}

// RecoverFromSnapshot replaces the engine content with the snapshot.
func (fsm *KVStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close closes the local engine.
func (fsm *KVStateMachine) Close() error {
	return fsm.database.Close()
}
