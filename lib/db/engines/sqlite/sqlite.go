package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/util"
	_ "github.com/mattn/go-sqlite3"
	"io"
)

//go:embed schema.sql
var schemaSQL string

// --------------------------------------------------------------------------
// Core SQLite database structure
// --------------------------------------------------------------------------

// sqliteImpl implements a persistent transactional database on top of SQLite.
// All records live in a single table keyed by (collection, key).
type sqliteImpl struct {
	path string
	sql  *sql.DB
}

// DBOptions configures the sqliteImpl behavior during initialization
type DBOptions struct {
	Path string // Path of the database file, ":memory:" for a private in-memory database
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewSQLiteDB opens (or creates) the SQLite database described by opts and applies the schema.
//
// The database is configured with:
//   - WAL mode
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, so transactions are serialized
func NewSQLiteDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil || opts.Path == "" {
		return nil, fmt.Errorf("sqlite: a database path is required")
	}

	handle, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. One connection also keeps
	// an in-memory database alive for the lifetime of the handle.
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := handle.Exec(schemaSQL); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &sqliteImpl{path: opts.Path, sql: handle}, nil
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Transactions
// --------------------------------------------------------------------------

// View runs fn inside a SQL transaction that is always rolled back.
//
// Thread-safety: Safe for concurrent use. Transactions are serialized by the single connection.
func (s *sqliteImpl) View(fn func(tx db.ReadTx) error) error {
	tx, err := s.sql.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	return fn(&readTx{tx: tx})
}

// Update runs fn inside a SQL transaction that is committed if fn returns nil.
// On error or panic the deferred rollback discards every change.
//
// Thread-safety: Safe for concurrent use. Transactions are serialized by the single connection.
func (s *sqliteImpl) Update(fn func(tx db.WriteTx) error) error {
	tx, err := s.sql.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() // no-op after a successful commit

	if err := fn(&writeTx{readTx: readTx{tx: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Transaction adapters
// --------------------------------------------------------------------------

type readTx struct {
	tx *sql.Tx
}

func (r *readTx) Get(collection, key string) (db.Record, bool, error) {
	var rec db.Record
	var hasMetadata bool
	err := r.tx.QueryRow(
		"SELECT object, metadata, has_metadata FROM records WHERE collection = ? AND key = ?",
		collection, key,
	).Scan(&rec.Object, &rec.Metadata, &hasMetadata)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Record{}, false, nil
	}
	if err != nil {
		return db.Record{}, false, err
	}

	// the driver may hand out nil for zero length blobs
	if rec.Object == nil {
		rec.Object = []byte{}
	}
	switch {
	case !hasMetadata:
		rec.Metadata = nil
	case rec.Metadata == nil:
		rec.Metadata = []byte{}
	}
	return rec, true, nil
}

func (r *readTx) Keys(collection string) ([]string, error) {
	return r.strings("SELECT key FROM records WHERE collection = ? ORDER BY key", collection)
}

func (r *readTx) Collections() ([]string, error) {
	return r.strings("SELECT DISTINCT collection FROM records ORDER BY collection")
}

// strings runs a query with a single text column.
// BINARY collation orders like Go byte-wise string comparison.
func (r *readTx) strings(query string, args ...any) ([]string, error) {
	rows, err := r.tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

type writeTx struct {
	readTx
}

func (w *writeTx) Put(collection, key string, record db.Record) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	object := record.Object
	if object == nil {
		object = []byte{}
	}
	_, err := w.tx.Exec(
		`INSERT INTO records (collection, key, object, metadata, has_metadata) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, key) DO UPDATE SET
		 object = excluded.object, metadata = excluded.metadata, has_metadata = excluded.has_metadata`,
		collection, key, object, record.Metadata, record.HasMetadata(),
	)
	return err
}

func (w *writeTx) Delete(collection, key string) error {
	if err := db.CheckAddress(collection, key); err != nil {
		return err
	}
	_, err := w.tx.Exec("DELETE FROM records WHERE collection = ? AND key = ?", collection, key)
	return err
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a portable dump of the database inside one transaction
func (s *sqliteImpl) Save(w io.Writer) error {
	return s.View(func(tx db.ReadTx) error {
		return db.WriteDump(w, tx)
	})
}

// Load replaces the database content with the dump read from r in one transaction
func (s *sqliteImpl) Load(r io.Reader) error {
	entries, err := db.ReadDump(r)
	if err != nil {
		return err
	}
	return s.Update(func(tx db.WriteTx) error {
		return db.RestoreDump(tx, entries)
	})
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (s *sqliteImpl) GetInfo() db.DatabaseInfo {
	info := db.DatabaseInfo{
		DbType: db.ImplSQLite,
		SupportedFeatures: []db.Feature{
			db.FeatureRead, db.FeatureWrite, db.FeatureDelete, db.FeatureKeys,
			db.FeatureSave, db.FeatureLoad, db.FeaturePersistent, db.FeatureIsolatedReads,
		},
	}

	histogram := util.NewSizeHistogram()
	var collectionSizes []float64
	var pageCount, pageSize int

	_ = s.sql.QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = s.sql.QueryRow("PRAGMA page_size").Scan(&pageSize)
	info.SizeBytes = pageCount * pageSize

	if rows, err := s.sql.Query("SELECT collection, COUNT(*) FROM records GROUP BY collection"); err == nil {
		for rows.Next() {
			var name string
			var n int
			if rows.Scan(&name, &n) == nil {
				info.Collections++
				info.Records += n
				collectionSizes = append(collectionSizes, float64(n))
			}
		}
		rows.Close()
	}

	if rows, err := s.sql.Query("SELECT length(object) + IFNULL(length(metadata), 0) FROM records"); err == nil {
		for rows.Next() {
			var size int
			if rows.Scan(&size) == nil {
				histogram.AddSample(size)
			}
		}
		rows.Close()
	}

	info.Metadata = &struct {
		Path                   string                 `json:"path"`
		CollectionDistribution util.DistributionStats `json:"collection_distribution"`
		MedianRecordSize       int                    `json:"median_record_size"`
		P99RecordSize          int                    `json:"p99_record_size"`
	}{
		Path:                   s.path,
		CollectionDistribution: util.NewDistributionStats(collectionSizes),
		MedianRecordSize:       histogram.MedianEstimate(),
		P99RecordSize:          histogram.GetPercentileEstimate(99),
	}
	return info
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (s *sqliteImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureRead |
		db.FeatureWrite |
		db.FeatureDelete |
		db.FeatureKeys |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeaturePersistent |
		db.FeatureIsolatedReads
	return supportedFeatures&feature == feature
}

// Close closes the database connection
func (s *sqliteImpl) Close() error {
	return s.sql.Close()
}
