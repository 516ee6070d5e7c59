package sqlite

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	dbtesting "github.com/ValentinKolb/oKV/lib/db/testing"
	"path/filepath"
	"testing"
)

// tempFactory returns a factory that opens a fresh database file in a test temp dir per call
func tempFactory(tb testing.TB) dbtesting.DBFactory {
	dir := tb.TempDir()
	counter := 0
	return func() db.KVDB {
		counter++
		database, err := NewSQLiteDB(&DBOptions{
			Path: filepath.Join(dir, fmt.Sprintf("sqlite-%d.db", counter)),
		})
		if err != nil {
			tb.Fatalf("failed to open sqlite database: %v", err)
		}
		return database
	}
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "SQLite", tempFactory(t))
}

func TestInMemory(t *testing.T) {
	dbtesting.RunKVDBTests(t, "SQLite(memory)", func() db.KVDB {
		database, err := NewSQLiteDB(&DBOptions{Path: ":memory:"})
		if err != nil {
			t.Fatalf("failed to open sqlite database: %v", err)
		}
		return database
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	database, err := NewSQLiteDB(&DBOptions{Path: path})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	err = database.Update(func(tx db.WriteTx) error {
		return tx.Put("c", "key", db.Record{Object: []byte("value"), Metadata: []byte("m")})
	})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	database, err = NewSQLiteDB(&DBOptions{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer database.Close()

	err = database.View(func(tx db.ReadTx) error {
		rec, ok, err := tx.Get("c", "key")
		if err != nil {
			return err
		}
		if !ok || string(rec.Object) != "value" || string(rec.Metadata) != "m" {
			t.Errorf("Expected committed record to survive a reopen, got ok=%v %+v", ok, rec)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "SQLite", tempFactory(b))
}
