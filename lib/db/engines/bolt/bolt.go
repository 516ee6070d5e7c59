package bolt

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/util"
	"go.etcd.io/bbolt"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Core Bolt database structure
// --------------------------------------------------------------------------

// boltImpl implements a persistent transactional database on top of bbolt.
// Every collection is a top level bucket, every record a framed value (see db.EncodeRecord).
type boltImpl struct {
	path string
	bolt *bbolt.DB
}

// DBOptions configures the boltImpl behavior during initialization
type DBOptions struct {
	Path    string        // Path of the database file, created if missing
	Timeout time.Duration // How long to wait for the file lock of another process (0 = wait forever)
	NoSync  bool          // Skip fsync after each commit (faster, not crash safe)
}

// DefaultOptions returns the default boltImpl options for the given path
func DefaultOptions(path string) *DBOptions {
	return &DBOptions{
		Path:    path,
		Timeout: time.Second,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewBoltDB opens (or creates) the bbolt file described by opts.
func NewBoltDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil || opts.Path == "" {
		return nil, fmt.Errorf("bolt: a database path is required")
	}

	handle, err := bbolt.Open(opts.Path, 0600, &bbolt.Options{
		Timeout: opts.Timeout,
		NoSync:  opts.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	return &boltImpl{path: opts.Path, bolt: handle}, nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Transactions
// --------------------------------------------------------------------------

// View executes a read-only transaction
//
// Thread-safety: bbolt allows any number of read transactions next to one write transaction.
func (b *boltImpl) View(fn func(tx db.ReadTx) error) error {
	return b.bolt.View(func(tx *bbolt.Tx) error {
		return fn(&readTx{tx: tx})
	})
}

// Update executes a read-write transaction.
// bbolt rolls the transaction back if fn returns an error or panics.
//
// Thread-safety: bbolt serializes write transactions.
func (b *boltImpl) Update(fn func(tx db.WriteTx) error) error {
	return b.bolt.Update(func(tx *bbolt.Tx) error {
		return fn(&writeTx{readTx: readTx{tx: tx}})
	})
}

// --------------------------------------------------------------------------
// Transaction adapters
// --------------------------------------------------------------------------

type readTx struct {
	tx *bbolt.Tx
}

func (r *readTx) Get(collection, key string) (db.Record, bool, error) {
	buck := r.tx.Bucket([]byte(collection))
	if buck == nil {
		return db.Record{}, false, nil
	}
	value := buck.Get([]byte(key))
	if value == nil {
		return db.Record{}, false, nil
	}
	// DecodeRecord copies, bbolt memory is only valid during the transaction
	rec, err := db.DecodeRecord(value)
	if err != nil {
		return db.Record{}, false, fmt.Errorf("bolt: corrupt record %s/%s: %w", collection, key, err)
	}
	return rec, true, nil
}

func (r *readTx) Keys(collection string) ([]string, error) {
	buck := r.tx.Bucket([]byte(collection))
	if buck == nil {
		return []string{}, nil
	}
	var keys []string
	// bbolt iterates in byte order which is the ascending string order
	err := buck.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	return keys, err
}

func (r *readTx) Collections() ([]string, error) {
	var names []string
	err := r.tx.ForEach(func(name []byte, buck *bbolt.Bucket) error {
		if k, _ := buck.Cursor().First(); k != nil {
			names = append(names, string(name))
		}
		return nil
	})
	return names, err
}

type writeTx struct {
	readTx
}

func (w *writeTx) Put(collection, key string, record db.Record) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	buck, err := w.tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", collection, err)
	}
	return buck.Put([]byte(key), db.EncodeRecord(record))
}

func (w *writeTx) Delete(collection, key string) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	buck := w.tx.Bucket([]byte(collection))
	if buck == nil {
		return nil
	}
	if err := buck.Delete([]byte(key)); err != nil {
		return err
	}
	// drop the bucket with its last key
	if k, _ := buck.Cursor().First(); k == nil {
		return w.tx.DeleteBucket([]byte(collection))
	}
	return nil
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a portable dump of the database inside one read transaction
func (b *boltImpl) Save(w io.Writer) error {
	return b.View(func(tx db.ReadTx) error {
		return db.WriteDump(w, tx)
	})
}

// Load replaces the database content with the dump read from r in one write transaction
func (b *boltImpl) Load(r io.Reader) error {
	entries, err := db.ReadDump(r)
	if err != nil {
		return err
	}
	return b.Update(func(tx db.WriteTx) error {
		return db.RestoreDump(tx, entries)
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (b *boltImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType: db.ImplBolt,
		SupportedFeatures: []db.Feature{
			db.FeatureRead, db.FeatureWrite, db.FeatureDelete, db.FeatureKeys,
			db.FeatureSave, db.FeatureLoad, db.FeatureSnapshotReads, db.FeaturePersistent, db.FeatureIsolatedReads,
		},
	}

	histogram := util.NewSizeHistogram()
	var collectionSizes []float64
	var fileSize int64

	_ = b.bolt.View(func(tx *bbolt.Tx) error {
		fileSize = tx.Size()
		return tx.ForEach(func(name []byte, buck *bbolt.Bucket) error {
			n := 0
			_ = buck.ForEach(func(_, v []byte) error {
				histogram.AddSample(len(v))
				n++
				return nil
			})
			if n > 0 {
				info.Collections++
				info.Records += n
				collectionSizes = append(collectionSizes, float64(n))
			}
			return nil
		})
	})

	info.SizeBytes = int(fileSize)
	stats := b.bolt.Stats()
	info.Metadata = &struct {
		Path                   string                 `json:"path"`
		CollectionDistribution util.DistributionStats `json:"collection_distribution"`
		MedianRecordSize       int                    `json:"median_record_size"`
		P99RecordSize          int                    `json:"p99_record_size"`
		OpenReadTx             int                    `json:"open_read_tx"`
		FreePages              int                    `json:"free_pages"`
	}{
		Path:                   b.path,
		CollectionDistribution: util.NewDistributionStats(collectionSizes),
		MedianRecordSize:       histogram.MedianEstimate(),
		P99RecordSize:          histogram.GetPercentileEstimate(99),
		OpenReadTx:             stats.OpenTxN,
		FreePages:              stats.FreePageN,
	}
	return info
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (b *boltImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureRead |
		db.FeatureWrite |
		db.FeatureDelete |
		db.FeatureKeys |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureSnapshotReads |
		db.FeaturePersistent |
		db.FeatureIsolatedReads
	return supportedFeatures&feature == feature
}

// Close closes the bbolt file
func (b *boltImpl) Close() error {
	return b.bolt.Close()
}
