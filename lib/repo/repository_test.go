package repo

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/oKV/lib/codec"
	"github.com/ValentinKolb/oKV/lib/common"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/oKV/lib/db/engines/maple"
	"github.com/ValentinKolb/oKV/lib/db/engines/sqlite"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/ValentinKolb/oKV/lib/store/lstore"
)

type note struct {
	ID   string
	Text string
	Seq  int
	Tags []string `json:"-"` // stored as metadata
}

func (n note) Identifier() string { return n.ID }

func noteSchema() Schema[note] {
	return Schema[note]{
		Collection: "Notes",
		Codec:      codec.JSON[note](),
		Metadata: WithMetadata(
			func(n note) ([]string, bool) { return n.Tags, n.Tags != nil },
			func(n *note, tags []string) { n.Tags = tags },
			codec.JSON[[]string](),
		),
	}
}

func newRepoOn(t *testing.T, database db.KVDB, opts ...Option) *Repository[note] {
	t.Helper()
	conn := lstore.NewLocalConnection(database)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = database.Close()
	})
	return New(conn, noteSchema(), opts...)
}

func newRepo(t *testing.T, opts ...Option) *Repository[note] {
	t.Helper()
	return newRepoOn(t, maple.NewMapleDB(nil), opts...)
}

// mustRead reads key and fails the test on an error
func mustRead(t *testing.T, r *Repository[note], key string) (note, bool) {
	t.Helper()
	got, ok, err := r.ReadByKey(key)
	if err != nil {
		t.Fatalf("ReadByKey(%q) failed: %v", key, err)
	}
	return got, ok
}

func ids(items []note) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestIndexDerivation(t *testing.T) {
	s := noteSchema()
	if got := s.IndexWithKey("a"); got != (store.Index{Collection: "Notes", Key: "a"}) {
		t.Errorf("Expected Notes/a, got %s", got)
	}
	if s.Index(note{ID: "x"}) != s.IndexWithKey("x") {
		t.Error("Index of an item must use its identifier")
	}
	want := []store.Index{{Collection: "Notes", Key: "b"}, {Collection: "Notes", Key: "a"}}
	if got := s.IndexesWithKeys([]string{"b", "a"}); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := s.IndexesWithKeys(nil); len(got) != 0 {
		t.Errorf("Expected no indexes, got %v", got)
	}
}

func TestWriteThenRead(t *testing.T) {
	r := newRepo(t)

	withTags := note{ID: "1", Text: "first", Tags: []string{"a", "b"}}
	emptyTags := note{ID: "2", Text: "second", Tags: []string{}}
	noTags := note{ID: "3", Text: "third"}
	if err := r.Write(withTags, emptyTags, noTags); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got, ok := mustRead(t, r, "1"); !ok || !reflect.DeepEqual(got, withTags) {
		t.Errorf("Expected %+v, got %+v (ok=%v)", withTags, got, ok)
	}

	got, ok := mustRead(t, r, "2")
	if !ok {
		t.Fatal("Record 2 not found")
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Errorf("Empty metadata must survive, got %#v", got.Tags)
	}

	got, ok, err := r.ReadAtIndex(r.Schema().Index(noTags))
	if err != nil || !ok {
		t.Fatalf("ReadAtIndex failed: ok=%v err=%v", ok, err)
	}
	if got.Tags != nil {
		t.Errorf("Expected nil tags, got %#v", got.Tags)
	}

	// the record without tags carries no metadata at all
	hasMeta, err := store.Read(r.Connection(), func(tx store.ReadTransaction) (bool, error) {
		_, ok, err := tx.ReadMetadataAtIndex(r.Schema().Index(noTags))
		return ok, err
	})
	if err != nil {
		t.Fatalf("ReadMetadataAtIndex failed: %v", err)
	}
	if hasMeta {
		t.Error("Record without tags has metadata")
	}

	// overwrite replaces the full record
	if err := r.Write(note{ID: "1", Text: "replaced"}); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	if got, _ := mustRead(t, r, "1"); !reflect.DeepEqual(got, note{ID: "1", Text: "replaced"}) {
		t.Errorf("Expected the replaced record, got %+v", got)
	}
}

func TestReadMissing(t *testing.T) {
	r := newRepo(t)
	got, ok := mustRead(t, r, "nope")
	if ok {
		t.Error("Missing key reported as present")
	}
	if !reflect.DeepEqual(got, note{}) {
		t.Errorf("Expected the zero value, got %+v", got)
	}
}

// TestWriteEmptyIdentifier checks that every engine rejects an item without identifier
// and that nothing of the failed transaction is visible afterwards.
func TestWriteEmptyIdentifier(t *testing.T) {
	engines := map[string]func(t *testing.T) db.KVDB{
		"maple": func(t *testing.T) db.KVDB { return maple.NewMapleDB(nil) },
		"bolt": func(t *testing.T) db.KVDB {
			database, err := bolt.NewBoltDB(bolt.DefaultOptions(filepath.Join(t.TempDir(), "okv.db")))
			if err != nil {
				t.Fatalf("Failed to open bolt: %v", err)
			}
			return database
		},
		"sqlite": func(t *testing.T) db.KVDB {
			database, err := sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: filepath.Join(t.TempDir(), "okv.sqlite")})
			if err != nil {
				t.Fatalf("Failed to open sqlite: %v", err)
			}
			return database
		},
	}

	for name, open := range engines {
		t.Run(name, func(t *testing.T) {
			r := newRepoOn(t, open(t))

			err := r.Write(note{ID: "kept", Text: "rolled back"}, note{Text: "no id"})
			var se *store.Error
			if !errors.As(err, &se) || se.Code != store.RetCInvalidOperation {
				t.Fatalf("Expected an InvalidOperation error, got %v", err)
			}

			if _, ok := mustRead(t, r, ""); ok {
				t.Error("Item without identifier was stored")
			}
			if _, ok := mustRead(t, r, "kept"); ok {
				t.Error("Item of the failed write was committed")
			}

			err = r.RemoveByKeys("")
			if !errors.As(err, &se) || se.Code != store.RetCInvalidOperation {
				t.Errorf("Expected an InvalidOperation error on remove, got %v", err)
			}
		})
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := newRepo(t)
	n := note{ID: "1", Text: "x"}
	if err := r.Write(n, note{ID: "2"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := r.Remove(n); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := r.Remove(n); err != nil {
		t.Fatalf("Removing twice must be a no-op, got %v", err)
	}
	if err := r.RemoveByKeys("1", "never-existed"); err != nil {
		t.Fatalf("RemoveByKeys failed: %v", err)
	}

	if _, ok := mustRead(t, r, "1"); ok {
		t.Error("Removed record is still present")
	}

	all, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if got := ids(all); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("Expected [2], got %v", got)
	}
}

func TestBatchPartialMiss(t *testing.T) {
	r := newRepo(t)
	if err := r.Write(note{ID: "a"}, note{ID: "c"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := r.ReadByKeys([]string{"c", "b", "a"})
	if err != nil {
		t.Fatalf("ReadByKeys failed: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"c", "a"}) {
		t.Errorf("Results must keep the order of the keys, got %v", ids(got))
	}

	existing, missing, err := r.FilterExisting([]string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("FilterExisting failed: %v", err)
	}
	if !reflect.DeepEqual(missing, []string{"b", "d"}) {
		t.Errorf("Expected missing [b d], got %v", missing)
	}
	if !reflect.DeepEqual(ids(existing), []string{"a", "c"}) {
		t.Errorf("Expected existing [a c], got %v", ids(existing))
	}
}

func TestReadAllReturnsEveryWrite(t *testing.T) {
	r := newRepo(t)
	const n = 57

	items := make([]note, n)
	for i := range items {
		items[i] = note{ID: fmt.Sprintf("%03d", n-1-i), Seq: i}
	}
	if err := r.Write(items...); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	all, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(all) != n {
		t.Fatalf("Expected %d items, got %d", n, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("ReadAll is not sorted by key: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestAsyncOrdering(t *testing.T) {
	r := newRepo(t)
	const n = 200

	var mu sync.Mutex
	var completed []int
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		r.AsyncWrite([]note{{ID: "counter", Seq: i}}, store.InlineExecutor, func(err error) {
			defer wg.Done()
			if err != nil {
				t.Errorf("Async write %d failed: %v", i, err)
			}
			mu.Lock()
			completed = append(completed, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	if len(completed) != n {
		t.Fatalf("Expected %d completions, got %d", n, len(completed))
	}
	for i, seq := range completed {
		if i != seq {
			t.Fatalf("Async writes must complete in issue order: expected %d, got %d", i, seq)
		}
	}

	got, ok := mustRead(t, r, "counter")
	if !ok {
		t.Fatal("Counter not found")
	}
	if got.Seq != n-1 {
		t.Errorf("Last issued write must win: expected %d, got %d", n-1, got.Seq)
	}
}

func TestAsyncRemove(t *testing.T) {
	r := newRepo(t)
	items := []note{{ID: "a"}, {ID: "b"}}
	if err := r.Write(items...); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	done := make(chan error, 1)
	r.AsyncRemove(items, store.GoExecutor, func(err error) { done <- err })
	if err := <-done; err != nil {
		t.Fatalf("AsyncRemove failed: %v", err)
	}

	all, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no items, got %v", ids(all))
	}
}

func TestDecodePolicy(t *testing.T) {
	writeGarbage := func(t *testing.T, r *Repository[note]) {
		t.Helper()
		if err := r.Write(note{ID: "good"}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		err := r.Connection().Write(func(tx store.WriteTransaction) error {
			return tx.WriteAtIndex(r.Schema().IndexWithKey("bad"), []byte("{not json"), nil)
		})
		if err != nil {
			t.Fatalf("Raw write failed: %v", err)
		}
	}

	t.Run("skip", func(t *testing.T) {
		r := newRepo(t)
		writeGarbage(t, r)
		before := common.DecodeFailures()

		if _, ok := mustRead(t, r, "bad"); ok {
			t.Error("Undecodable record must be reported as absent")
		}

		all, err := r.ReadAll()
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("Expected 1 decodable item, got %d", len(all))
		}

		_, missing, err := r.FilterExisting([]string{"good", "bad"})
		if err != nil {
			t.Fatalf("FilterExisting failed: %v", err)
		}
		if !reflect.DeepEqual(missing, []string{"bad"}) {
			t.Errorf("Expected missing [bad], got %v", missing)
		}

		if got := common.DecodeFailures(); got < before+3 {
			t.Errorf("Expected at least %d decode failures, got %d", before+3, got)
		}
	})

	t.Run("fail", func(t *testing.T) {
		r := newRepo(t, WithDecodePolicy(DecodeFail))
		writeGarbage(t, r)

		_, _, err := r.ReadByKey("bad")
		if !errors.Is(err, codec.ErrDecode) {
			t.Fatalf("Expected ErrDecode, got %v", err)
		}
		if !strings.Contains(err.Error(), "Notes/bad") {
			t.Errorf("Error must name the record, got %v", err)
		}

		if _, err := r.ReadAll(); !errors.Is(err, codec.ErrDecode) {
			t.Errorf("Expected ErrDecode from ReadAll, got %v", err)
		}
	})

	t.Run("bad metadata", func(t *testing.T) {
		r := newRepo(t, WithDecodePolicy(DecodeFail))
		err := r.Connection().Write(func(tx store.WriteTransaction) error {
			return tx.WriteAtIndex(r.Schema().IndexWithKey("m"), []byte(`{"ID":"m"}`), []byte("{"))
		})
		if err != nil {
			t.Fatalf("Raw write failed: %v", err)
		}
		if _, _, err := r.ReadByKey("m"); !errors.Is(err, codec.ErrDecode) {
			t.Errorf("Expected ErrDecode, got %v", err)
		}
	})
}

func TestParseDecodePolicy(t *testing.T) {
	p, err := ParseDecodePolicy("fail")
	if err != nil || p != DecodeFail {
		t.Errorf("Expected DecodeFail, got %v (%v)", p, err)
	}
	if p.String() != "fail" {
		t.Errorf("Expected fail, got %s", p)
	}

	if p, err = ParseDecodePolicy("skip"); err != nil || p != DecodeSkip {
		t.Errorf("Expected DecodeSkip, got %v (%v)", p, err)
	}

	if _, err = ParseDecodePolicy("ignore"); err == nil {
		t.Error("Expected an error for an unknown policy")
	}
}

func TestHelpersComposeInOneTransaction(t *testing.T) {
	r := newRepo(t)
	s := r.Schema()
	if err := r.Write(note{ID: "old"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	err := r.Connection().Write(func(tx store.WriteTransaction) error {
		if err := RemoveByKeysIn(tx, s, "old"); err != nil {
			return err
		}
		if err := WriteIn(tx, s, note{ID: "new1"}, note{ID: "new2"}); err != nil {
			return err
		}
		all, err := ReadAllIn(tx, s)
		if err != nil {
			return err
		}
		if len(all) != 2 {
			t.Errorf("Reads must see writes of the same transaction, got %v", ids(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	// an aborted transaction leaves nothing behind
	err = r.Connection().Write(func(tx store.WriteTransaction) error {
		if err := WriteIn(tx, s, note{ID: "ghost"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil || err.Error() != "abort" {
		t.Fatalf("Expected abort, got %v", err)
	}
	if _, ok := mustRead(t, r, "ghost"); ok {
		t.Error("Write of the aborted transaction is visible")
	}

	got, err := store.Read(r.Connection(), func(tx store.ReadTransaction) ([]note, error) {
		return ReadAtIndexesIn(tx, s, []store.Index{s.IndexWithKey("new2"), s.IndexWithKey("old")})
	})
	if err != nil {
		t.Fatalf("ReadAtIndexesIn failed: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"new2"}) {
		t.Errorf("Expected [new2], got %v", ids(got))
	}
}
