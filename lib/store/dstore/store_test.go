package dstore

import (
	"bytes"
	"context"
	"errors"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/oKV/lib/db/testing"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/ValentinKolb/oKV/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// In-process node host (applies proposals directly to one state machine)
// --------------------------------------------------------------------------

type localHost struct {
	mu    sync.Mutex
	fsm   sm.IConcurrentStateMachine
	index uint64
	busy  int // number of calls that fail with ErrSystemBusy before succeeding
	calls int
}

func newLocalHost() *localHost {
	factory := CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })
	return &localHost{fsm: factory(1, 1)}
}

func (h *localHost) systemBusy() bool {
	h.calls++
	if h.busy > 0 {
		h.busy--
		return true
	}
	return false
}

func (h *localHost) SyncPropose(_ context.Context, _ *client.Session, cmd []byte) (sm.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.systemBusy() {
		return sm.Result{}, dragonboat.ErrSystemBusy
	}
	h.index++
	entries, err := h.fsm.Update([]sm.Entry{{Index: h.index, Cmd: cmd}})
	if err != nil {
		return sm.Result{}, err
	}
	return entries[0].Result, nil
}

func (h *localHost) SyncRead(_ context.Context, _ uint64, query interface{}) (interface{}, error) {
	h.mu.Lock()
	busy := h.systemBusy()
	h.mu.Unlock()
	if busy {
		return nil, dragonboat.ErrSystemBusy
	}
	return h.fsm.Lookup(query)
}

func (h *localHost) StaleRead(_ uint64, query interface{}) (interface{}, error) {
	return h.fsm.Lookup(query)
}

func (h *localHost) GetNoOPSession(uint64) *client.Session {
	return nil
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "DistributedDB", func() db.KVDB {
		return NewDistributedDB(newLocalHost(), 1, time.Second)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "DistributedDB", func() db.KVDB {
		return NewDistributedDB(newLocalHost(), 1, time.Second)
	})
}

func TestRetryOnSystemBusy(t *testing.T) {
	host := newLocalHost()
	host.busy = 2
	database := NewDistributedDB(host, 1, 10*time.Millisecond)

	err := database.Update(func(tx db.WriteTx) error {
		return tx.Put("c", "k", db.Record{Object: []byte("v")})
	})
	if err != nil {
		t.Fatalf("Update failed after retries: %v", err)
	}
	if host.calls != 3 {
		t.Errorf("expected 3 propose attempts, got %d", host.calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	host := newLocalHost()
	host.busy = retries
	database := NewDistributedDB(host, 1, 10*time.Millisecond)

	err := database.View(func(tx db.ReadTx) error {
		_, _, err := tx.Get("c", "k")
		return err
	})
	var se *store.Error
	if !errors.As(err, &se) || se.Code != store.RetCInternalError {
		t.Fatalf("expected internal store error, got %v", err)
	}
}

func TestReadOnlyUpdateIsNotProposed(t *testing.T) {
	host := newLocalHost()
	database := NewDistributedDB(host, 1, time.Second)

	err := database.Update(func(tx db.WriteTx) error {
		_, err := tx.Keys("c")
		return err
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if host.index != 0 {
		t.Errorf("expected no proposal, got %d", host.index)
	}
}

func TestOneCommandPerTransaction(t *testing.T) {
	host := newLocalHost()
	database := NewDistributedDB(host, 1, time.Second)

	err := database.Update(func(tx db.WriteTx) error {
		for _, k := range []string{"a", "b", "c"} {
			if err := tx.Put("col", k, db.Record{Object: []byte(k)}); err != nil {
				return err
			}
		}
		return tx.Delete("col", "b")
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if host.index != 1 {
		t.Errorf("expected exactly one raft entry, got %d", host.index)
	}

	var keys []string
	err = database.View(func(tx db.ReadTx) error {
		var err error
		keys, err = tx.Keys("col")
		return err
	})
	if err != nil || len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("unexpected keys %v (err %v)", keys, err)
	}
}

func TestGetInfo(t *testing.T) {
	database := NewDistributedDB(newLocalHost(), 7, time.Second)
	info := database.GetInfo()
	if info.DbType != db.ImplRaft {
		t.Errorf("expected db type %s, got %s", db.ImplRaft, info.DbType)
	}
	if database.SupportsFeature(db.FeatureIsolatedReads) {
		t.Errorf("distributed reads are not isolated")
	}
}

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

func TestStateMachineInvalidEntries(t *testing.T) {
	fsm := CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })(1, 1)

	valid := (&internal.Command{Ops: []internal.Op{
		{Type: internal.OpTPut, Collection: "c", Key: "k", Record: db.Record{Object: []byte("v")}},
	}}).Serialize()
	invalid := (&internal.Command{Ops: []internal.Op{
		{Type: internal.OpTPut, Collection: "", Key: "k", Record: db.Record{Object: []byte("v")}},
	}}).Serialize()
	emptyKey := (&internal.Command{Ops: []internal.Op{
		{Type: internal.OpTPut, Collection: "c", Key: "k", Record: db.Record{Object: []byte("lost")}},
		{Type: internal.OpTPut, Collection: "c", Key: "", Record: db.Record{Object: []byte("v")}},
	}}).Serialize()

	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2}},
		{Index: 3, Cmd: invalid},
		{Index: 4, Cmd: valid},
		{Index: 5, Cmd: emptyKey},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	expected := []store.RetCode{
		store.RetCInvalidOperation,
		store.RetCInternalError,
		store.RetCInvalidOperation,
		store.RetCSuccess,
		store.RetCInvalidOperation,
	}
	for i, code := range expected {
		if store.RetCode(entries[i].Result.Value) != code {
			t.Errorf("entry %d: expected %s, got %s (%s)", i, code, store.RetCode(entries[i].Result.Value), entries[i].Result.Data)
		}
	}

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Collection: "c", Key: "k"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if r := res.(internal.QueryResult); !r.Ok || string(r.Record.Object) != "v" {
		t.Errorf("unexpected lookup result %+v", r)
	}

	if _, err := fsm.Lookup("not a query"); err == nil {
		t.Errorf("expected error for invalid query type")
	}
	if _, err := fsm.Lookup(internal.Query{Type: 99}); err == nil {
		t.Errorf("expected error for unknown query")
	}
}

func TestStateMachineSnapshot(t *testing.T) {
	factory := CreateStateMachineFactory(func() db.KVDB { return maple.NewMapleDB(nil) })
	source := factory(1, 1)

	cmd := internal.Command{Ops: []internal.Op{
		{Type: internal.OpTPut, Collection: "c", Key: "a", Record: db.Record{Object: []byte("1"), Metadata: []byte("m")}},
		{Type: internal.OpTPut, Collection: "c", Key: "b", Record: db.Record{Object: []byte("2")}},
	}}
	if _, err := source.Update([]sm.Entry{{Index: 1, Cmd: cmd.Serialize()}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	ctx, err := source.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot failed: %v", err)
	}

	// updates after PrepareSnapshot must not end up in the snapshot
	later := internal.Command{Ops: []internal.Op{{Type: internal.OpTDelete, Collection: "c", Key: "a"}}}
	if _, err := source.Update([]sm.Entry{{Index: 2, Cmd: later.Serialize()}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	var buf bytes.Buffer
	if err := source.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	target := factory(1, 2)
	if err := target.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}

	keys, err := target.Lookup(internal.Query{Type: internal.QueryTKeys, Collection: "c"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if k := keys.([]string); len(k) != 2 {
		t.Errorf("expected 2 keys in recovered replica, got %v", k)
	}

	res, err := target.Lookup(internal.Query{Type: internal.QueryTGet, Collection: "c", Key: "a"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if r := res.(internal.QueryResult); !r.Ok || string(r.Record.Metadata) != "m" {
		t.Errorf("unexpected recovered record %+v", r)
	}

	if err := target.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
