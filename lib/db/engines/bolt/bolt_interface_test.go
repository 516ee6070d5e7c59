package bolt

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
		database, err := NewBoltDB(&DBOptions{
			Path:   filepath.Join(dir, fmt.Sprintf("bolt-%d.db", counter)),
			NoSync: true,
		})
		if err != nil {
			tb.Fatalf("failed to open bolt database: %v", err)
		}
		return database
	}
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BoltDB", tempFactory(t))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	database, err := NewBoltDB(DefaultOptions(path))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	err = database.Update(func(tx db.WriteTx) error {
		return tx.Put("c", "key", db.Record{Object: []byte("value"), Metadata: []byte{}})
	})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	database, err = NewBoltDB(DefaultOptions(path))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer database.Close()

	err = database.View(func(tx db.ReadTx) error {
		rec, ok, err := tx.Get("c", "key")
		if err != nil {
			return err
		}
		if !ok || string(rec.Object) != "value" {
			t.Errorf("Expected committed record to survive a reopen, got ok=%v %s", ok, rec.Object)
		}
		if !rec.HasMetadata() {
			t.Errorf("Expected empty metadata to survive a reopen")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func TestMissingPath(t *testing.T) {
	if _, err := NewBoltDB(&DBOptions{}); err == nil {
		t.Errorf("Expected an error without a path")
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BoltDB", tempFactory(b))
}
