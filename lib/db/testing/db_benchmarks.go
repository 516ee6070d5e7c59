package testing

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"math/rand"
	"sync/atomic"
	"testing"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("PutBatch", func(b *testing.B) {
		benchmarkPutBatch(b, factory())
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Keys", func(b *testing.B) {
		benchmarkKeys(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// fill writes n records into one collection in a single transaction
func fill(b *testing.B, database db.KVDB, collection string, n int, value []byte) {
	b.Helper()
	err := database.Update(func(tx db.WriteTx) error {
		for i := 0; i < n; i++ {
			if err := tx.Put(collection, fmt.Sprintf("key-%d", i), db.Record{Object: value}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatalf("fill failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for a single put per write transaction
func benchmarkPut(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureWrite)

	var counter atomic.Int64
	value := []byte("benchmark-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter.Add(1))
			_ = database.Update(func(tx db.WriteTx) error {
				return tx.Put("bench", key, db.Record{Object: value})
			})
		}
	})
}

// Benchmark for 100 puts per write transaction
func benchmarkPutBatch(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureWrite)

	value := []byte("benchmark-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Update(func(tx db.WriteTx) error {
			for j := 0; j < 100; j++ {
				if err := tx.Put("bench", fmt.Sprintf("key-%d", j), db.Record{Object: value}); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// Benchmark for puts with a 64 KB object
func benchmarkPutLargeValue(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureWrite)

	value := bytes.Repeat([]byte("x"), 64*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Update(func(tx db.WriteTx) error {
			return tx.Put("bench", fmt.Sprintf("key-%d", i%1000), db.Record{Object: value})
		})
	}
}

// Benchmark for gets of existing keys
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureRead|db.FeatureWrite)

	const numKeys = 10000
	fill(b, database, "bench", numKeys, []byte("benchmark-value"))

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(numKeys))
			_ = database.View(func(tx db.ReadTx) error {
				_, _, err := tx.Get("bench", key)
				return err
			})
		}
	})
}

// Benchmark for the sorted key enumeration of a collection with 1000 keys
func benchmarkKeys(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureWrite|db.FeatureKeys)

	fill(b, database, "bench", 1000, []byte("v"))
	fill(b, database, "other", 1000, []byte("v"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.View(func(tx db.ReadTx) error {
			_, err := tx.Keys("bench")
			return err
		})
	}
}

// Benchmark for Save and Load of 10000 records
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	source := factory()
	b.Cleanup(func() {
		source.Close()
	})

	requireFeature(b, source, db.FeatureWrite|db.FeatureSave|db.FeatureLoad)

	fill(b, source, "bench", 10000, []byte("benchmark-value"))

	var snapshot bytes.Buffer
	if err := source.Save(&snapshot); err != nil {
		b.Fatalf("Save failed: %v", err)
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := source.Save(&buf); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(snapshot.Bytes())); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
		}
	})
}

// Benchmark for a realistic mix of 80% reads and 20% writes
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureRead|db.FeatureWrite)

	const numKeys = 1000
	value := []byte("benchmark-value")
	fill(b, database, "bench", numKeys, value)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(numKeys))
			if r.Intn(10) < 8 {
				_ = database.View(func(tx db.ReadTx) error {
					_, _, err := tx.Get("bench", key)
					return err
				})
			} else {
				_ = database.Update(func(tx db.WriteTx) error {
					return tx.Put("bench", key, db.Record{Object: value})
				})
			}
		}
	})
}
