package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/oKV/lib/db"
)

// DBFactory is a function that creates a new, empty instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Metadata", func(t *testing.T) {
			testMetadata(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("KeysAndCollections", func(t *testing.T) {
			testKeysAndCollections(t, factory())
		})

		t.Run("ReadYourWrites", func(t *testing.T) {
			testReadYourWrites(t, factory())
		})

		t.Run("RollbackOnError", func(t *testing.T) {
			testRollbackOnError(t, factory())
		})

		t.Run("RollbackOnPanic", func(t *testing.T) {
			testRollbackOnPanic(t, factory())
		})

		t.Run("InvalidCollection", func(t *testing.T) {
			testInvalidCollection(t, factory())
		})

		t.Run("InvalidKey", func(t *testing.T) {
			testInvalidKey(t, factory())
		})

		t.Run("ErrorPassthrough", func(t *testing.T) {
			testErrorPassthrough(t, factory())
		})

		t.Run("AtomicVisibility", func(t *testing.T) {
			testAtomicVisibility(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("LoadInvalid", func(t *testing.T) {
			testLoadInvalid(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustPut(t testing.TB, database db.KVDB, collection, key string, record db.Record) {
	t.Helper()
	err := database.Update(func(tx db.WriteTx) error {
		return tx.Put(collection, key, record)
	})
	if err != nil {
		t.Fatalf("Put(%s, %s) failed: %v", collection, key, err)
	}
}

func mustGet(t testing.TB, database db.KVDB, collection, key string) (db.Record, bool) {
	t.Helper()
	var rec db.Record
	var ok bool
	err := database.View(func(tx db.ReadTx) error {
		var err error
		rec, ok, err = tx.Get(collection, key)
		return err
	})
	if err != nil {
		t.Fatalf("Get(%s, %s) failed: %v", collection, key, err)
	}
	return rec, ok
}

func mustKeys(t testing.TB, database db.KVDB, collection string) []string {
	t.Helper()
	var keys []string
	err := database.View(func(tx db.ReadTx) error {
		var err error
		keys, err = tx.Keys(collection)
		return err
	})
	if err != nil {
		t.Fatalf("Keys(%s) failed: %v", collection, err)
	}
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite)

	value1 := []byte("test-value1")
	value2 := []byte("test-value2")

	mustPut(t, database, "c", "key", db.Record{Object: value1})
	rec, ok := mustGet(t, database, "c", "key")
	if !ok {
		t.Fatalf("Expected key to exist after Put")
	}
	if !bytes.Equal(rec.Object, value1) {
		t.Errorf("Expected value %s, got %s", value1, rec.Object)
	}

	mustPut(t, database, "c", "key", db.Record{Object: value2})
	rec, _ = mustGet(t, database, "c", "key")
	if !bytes.Equal(rec.Object, value2) {
		t.Errorf("Expected value %s, got %s", value2, rec.Object)
	}

	if _, ok := mustGet(t, database, "c", "nonexistent-key"); ok {
		t.Errorf("Expected nonexistent key to return ok=false")
	}
	if _, ok := mustGet(t, database, "other", "key"); ok {
		t.Errorf("Keys must be scoped to their collection")
	}

	// modifying returned or passed slices must not change stored data
	rec.Object[0] = 'X'
	value2[0] = 'Y'
	rec, _ = mustGet(t, database, "c", "key")
	if !bytes.Equal(rec.Object, []byte("test-value2")) {
		t.Errorf("Stored value was modified through a shared slice: %s", rec.Object)
	}

	// empty object is a valid value
	mustPut(t, database, "c", "empty", db.Record{Object: []byte{}})
	rec, ok = mustGet(t, database, "c", "empty")
	if !ok || len(rec.Object) != 0 {
		t.Errorf("Expected empty object to be stored, got ok=%v len=%d", ok, len(rec.Object))
	}
}

func testMetadata(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite)

	mustPut(t, database, "c", "none", db.Record{Object: []byte("a")})
	mustPut(t, database, "c", "empty", db.Record{Object: []byte("b"), Metadata: []byte{}})
	mustPut(t, database, "c", "full", db.Record{Object: []byte("c"), Metadata: []byte("meta")})

	rec, _ := mustGet(t, database, "c", "none")
	if rec.HasMetadata() {
		t.Errorf("Record without metadata must not report metadata, got %v", rec.Metadata)
	}

	rec, _ = mustGet(t, database, "c", "empty")
	if !rec.HasMetadata() || len(rec.Metadata) != 0 {
		t.Errorf("Empty metadata must be preserved as present, got %v", rec.Metadata)
	}

	rec, _ = mustGet(t, database, "c", "full")
	if !bytes.Equal(rec.Metadata, []byte("meta")) {
		t.Errorf("Expected metadata 'meta', got %s", rec.Metadata)
	}

	// replacing a record replaces its metadata as well
	mustPut(t, database, "c", "full", db.Record{Object: []byte("d")})
	rec, _ = mustGet(t, database, "c", "full")
	if rec.HasMetadata() {
		t.Errorf("Metadata must be dropped when the record is replaced without metadata")
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite|db.FeatureDelete)

	mustPut(t, database, "c", "key", db.Record{Object: []byte("v")})

	err := database.Update(func(tx db.WriteTx) error {
		return tx.Delete("c", "key")
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := mustGet(t, database, "c", "key"); ok {
		t.Errorf("Expected key to be deleted")
	}

	// deleting a missing key is not an error
	err = database.Update(func(tx db.WriteTx) error {
		return tx.Delete("c", "missing")
	})
	if err != nil {
		t.Errorf("Deleting a missing key should not fail, got %v", err)
	}
}

func testKeysAndCollections(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureWrite|db.FeatureKeys)

	if keys := mustKeys(t, database, "unknown"); len(keys) != 0 {
		t.Errorf("Expected no keys for unknown collection, got %v", keys)
	}

	err := database.Update(func(tx db.WriteTx) error {
		for _, k := range []string{"b", "a", "d", "c", "aa"} {
			if err := tx.Put("letters", k, db.Record{Object: []byte(k)}); err != nil {
				return err
			}
		}
		return tx.Put("numbers", "1", db.Record{Object: []byte("1")})
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	expected := []string{"a", "aa", "b", "c", "d"}
	if keys := mustKeys(t, database, "letters"); !equalStrings(keys, expected) {
		t.Errorf("Expected keys %v, got %v", expected, keys)
	}

	var collections []string
	_ = database.View(func(tx db.ReadTx) error {
		var err error
		collections, err = tx.Collections()
		return err
	})
	if !equalStrings(collections, []string{"letters", "numbers"}) {
		t.Errorf("Expected collections [letters numbers], got %v", collections)
	}

	// a collection without keys is not listed
	err = database.Update(func(tx db.WriteTx) error {
		return tx.Delete("numbers", "1")
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_ = database.View(func(tx db.ReadTx) error {
		var err error
		collections, err = tx.Collections()
		return err
	})
	if !equalStrings(collections, []string{"letters"}) {
		t.Errorf("Expected collections [letters], got %v", collections)
	}
}

func testReadYourWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite|db.FeatureDelete|db.FeatureKeys)

	mustPut(t, database, "c", "old", db.Record{Object: []byte("old")})

	err := database.Update(func(tx db.WriteTx) error {
		if err := tx.Put("c", "new", db.Record{Object: []byte("new")}); err != nil {
			return err
		}
		if err := tx.Delete("c", "old"); err != nil {
			return err
		}

		rec, ok, err := tx.Get("c", "new")
		if err != nil {
			return err
		}
		if !ok || string(rec.Object) != "new" {
			t.Errorf("Write transaction must see its own put")
		}
		if _, ok, _ := tx.Get("c", "old"); ok {
			t.Errorf("Write transaction must see its own delete")
		}
		keys, err := tx.Keys("c")
		if err != nil {
			return err
		}
		if !equalStrings(keys, []string{"new"}) {
			t.Errorf("Expected keys [new] inside the transaction, got %v", keys)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func testRollbackOnError(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite|db.FeatureDelete)

	mustPut(t, database, "c", "keep", db.Record{Object: []byte("keep")})

	errAbort := errors.New("abort")
	err := database.Update(func(tx db.WriteTx) error {
		if err := tx.Put("c", "new", db.Record{Object: []byte("new")}); err != nil {
			return err
		}
		if err := tx.Delete("c", "keep"); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("Expected the callback error to be returned, got %v", err)
	}

	if _, ok := mustGet(t, database, "c", "new"); ok {
		t.Errorf("Put of a failed transaction must not be visible")
	}
	if _, ok := mustGet(t, database, "c", "keep"); !ok {
		t.Errorf("Delete of a failed transaction must not be visible")
	}
}

func testRollbackOnPanic(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite)

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("Expected panic to propagate")
			}
		}()
		_ = database.Update(func(tx db.WriteTx) error {
			_ = tx.Put("c", "key", db.Record{Object: []byte("v")})
			panic("boom")
		})
	}()

	if _, ok := mustGet(t, database, "c", "key"); ok {
		t.Errorf("Put of a panicking transaction must not be visible")
	}

	// the database must still accept write transactions
	mustPut(t, database, "c", "after", db.Record{Object: []byte("v")})
	if _, ok := mustGet(t, database, "c", "after"); !ok {
		t.Errorf("Expected write after panic to succeed")
	}
}

func testInvalidCollection(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureWrite)

	err := database.Update(func(tx db.WriteTx) error {
		return tx.Put("", "key", db.Record{Object: []byte("v")})
	})
	if !errors.Is(err, db.ErrInvalidCollection) {
		t.Errorf("Expected ErrInvalidCollection, got %v", err)
	}
}

// testInvalidKey checks that every engine rejects an empty key and rolls the transaction back
func testInvalidKey(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite|db.FeatureDelete|db.FeatureKeys)

	err := database.Update(func(tx db.WriteTx) error {
		if err := tx.Put("c", "k", db.Record{Object: []byte("v")}); err != nil {
			return err
		}
		return tx.Put("c", "", db.Record{Object: []byte("v")})
	})
	if !errors.Is(err, db.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey from Put, got %v", err)
	}

	err = database.Update(func(tx db.WriteTx) error {
		return tx.Delete("c", "")
	})
	if !errors.Is(err, db.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey from Delete, got %v", err)
	}

	if keys := mustKeys(t, database, "c"); len(keys) != 0 {
		t.Errorf("Expected no keys after the failed transaction, got %v", keys)
	}
	if _, ok := mustGet(t, database, "c", ""); ok {
		t.Errorf("Expected no record under the empty key")
	}
}

func testErrorPassthrough(t *testing.T, database db.KVDB) {
	defer database.Close()

	errRead := fmt.Errorf("read failed")
	if err := database.View(func(tx db.ReadTx) error { return errRead }); !errors.Is(err, errRead) {
		t.Errorf("Expected View to return the callback error, got %v", err)
	}
	if err := database.View(func(tx db.ReadTx) error { return nil }); err != nil {
		t.Errorf("Expected nil from View, got %v", err)
	}
}

// testAtomicVisibility runs readers while a writer updates two records in every transaction.
// Readers must always observe both records from the same commit.
func testAtomicVisibility(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureRead|db.FeatureWrite|db.FeatureIsolatedReads)

	const commits = 200
	const readers = 4

	write := func(i int) error {
		return database.Update(func(tx db.WriteTx) error {
			v := []byte(fmt.Sprintf("%d", i))
			if err := tx.Put("pair", "left", db.Record{Object: v}); err != nil {
				return err
			}
			return tx.Put("pair", "right", db.Record{Object: v})
		})
	}
	if err := write(0); err != nil {
		t.Fatalf("Initial write failed: %v", err)
	}

	var stop atomic.Bool
	var mismatches atomic.Int64
	var wg sync.WaitGroup
	wg.Add(readers)
	for r := 0; r < readers; r++ {
		go func() {
			defer wg.Done()
			for !stop.Load() {
				_ = database.View(func(tx db.ReadTx) error {
					left, _, err := tx.Get("pair", "left")
					if err != nil {
						return err
					}
					right, _, err := tx.Get("pair", "right")
					if err != nil {
						return err
					}
					if !bytes.Equal(left.Object, right.Object) {
						mismatches.Add(1)
					}
					return nil
				})
			}
		}()
	}

	for i := 1; i <= commits; i++ {
		if err := write(i); err != nil {
			t.Errorf("Write %d failed: %v", i, err)
			break
		}
	}
	stop.Store(true)
	wg.Wait()

	if n := mismatches.Load(); n > 0 {
		t.Errorf("Readers observed %d partially applied commits", n)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, db.FeatureWrite|db.FeatureKeys|db.FeatureSave|db.FeatureLoad)

	err := source.Update(func(tx db.WriteTx) error {
		for i := 0; i < 100; i++ {
			rec := db.Record{Object: []byte(fmt.Sprintf("value-%d", i))}
			if i%3 == 1 {
				rec.Metadata = []byte(fmt.Sprintf("meta-%d", i))
			} else if i%3 == 2 {
				rec.Metadata = []byte{}
			}
			if err := tx.Put(fmt.Sprintf("col-%d", i%4), fmt.Sprintf("key-%03d", i), rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to fill source: %v", err)
	}

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := factory()
	defer target.Close()

	// Load replaces existing content
	mustPut(t, target, "stale", "key", db.Record{Object: []byte("stale")})

	if err := target.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, ok := mustGet(t, target, "stale", "key"); ok {
		t.Errorf("Load must replace existing content")
	}

	for i := 0; i < 100; i++ {
		collection, key := fmt.Sprintf("col-%d", i%4), fmt.Sprintf("key-%03d", i)
		rec, ok := mustGet(t, target, collection, key)
		if !ok {
			t.Errorf("Missing %s/%s after Load", collection, key)
			continue
		}
		if string(rec.Object) != fmt.Sprintf("value-%d", i) {
			t.Errorf("Wrong value for %s/%s: %s", collection, key, rec.Object)
		}
		switch i % 3 {
		case 0:
			if rec.HasMetadata() {
				t.Errorf("%s/%s should have no metadata", collection, key)
			}
		case 1:
			if string(rec.Metadata) != fmt.Sprintf("meta-%d", i) {
				t.Errorf("Wrong metadata for %s/%s: %s", collection, key, rec.Metadata)
			}
		case 2:
			if !rec.HasMetadata() || len(rec.Metadata) != 0 {
				t.Errorf("%s/%s should have empty metadata", collection, key)
			}
		}
	}

	if keys := mustKeys(t, target, "col-0"); len(keys) != 25 {
		t.Errorf("Expected 25 keys in col-0, got %d", len(keys))
	}
}

func testLoadInvalid(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureWrite|db.FeatureLoad)

	mustPut(t, database, "c", "key", db.Record{Object: []byte("v")})

	if err := database.Load(bytes.NewReader([]byte("not a dump"))); err == nil {
		t.Errorf("Expected Load of garbage to fail")
	}
	if _, ok := mustGet(t, database, "c", "key"); !ok {
		t.Errorf("Failed Load must leave the database unchanged")
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureWrite)

	err := database.Update(func(tx db.WriteTx) error {
		for i := 0; i < 10; i++ {
			if err := tx.Put(fmt.Sprintf("c%d", i%2), fmt.Sprintf("k%d", i), db.Record{Object: []byte("v")}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	info := database.GetInfo()
	if info.Records != 10 {
		t.Errorf("Expected 10 records in info, got %d", info.Records)
	}
	if info.Collections != 2 {
		t.Errorf("Expected 2 collections in info, got %d", info.Collections)
	}
	if info.DbType == "" {
		t.Errorf("Expected a database type in info")
	}
	for _, f := range info.SupportedFeatures {
		if !database.SupportsFeature(f) {
			t.Errorf("Info lists feature %s that SupportsFeature denies", f)
		}
	}
}
