package db

import (
	"errors"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplBolt   Implementation = "bolt"
	ImplSQLite Implementation = "sqlite"
	ImplRaft   Implementation = "raft"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureRead          Feature = 1 << iota // Support for Get inside read transactions
	FeatureWrite                             // Support for Put inside write transactions
	FeatureDelete                            // Support for Delete inside write transactions
	FeatureKeys                              // Support for enumerating keys and collections
	FeatureSave                              // Support for Save operations
	FeatureLoad                              // Support for Load operations
	FeatureSnapshotReads                     // Read transactions can run while a write transaction is active
	FeaturePersistent                        // Committed data survives a process restart
	FeatureIsolatedReads                     // All reads of one transaction observe the same committed state
)

func (f Feature) String() string {
	switch f {
	case FeatureRead:
		return "Read"
	case FeatureWrite:
		return "Write"
	case FeatureDelete:
		return "Delete"
	case FeatureKeys:
		return "Keys"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureSnapshotReads:
		return "SnapshotReads"
	case FeaturePersistent:
		return "Persistent"
	case FeatureIsolatedReads:
		return "IsolatedReads"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	Records           int            `json:"records"`
	Collections       int            `json:"collections"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ErrInvalidCollection is returned by write transactions for an empty collection name.
var ErrInvalidCollection = errors.New("db: collection name must not be empty")

// ErrInvalidKey is returned by write transactions for an empty key.
var ErrInvalidKey = errors.New("db: key must not be empty")

// CheckAddress returns ErrInvalidCollection or ErrInvalidKey if (collection, key)
// cannot address a record. Every engine calls it at the start of Put and Delete.
func CheckAddress(collection, key string) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// --------------------------------------------------------------------------
// Record
// --------------------------------------------------------------------------

// Record is the unit stored under a (collection, key) pair.
// A nil Metadata means the record carries no metadata. An empty, non-nil
// Metadata is a present but empty value and is preserved by all engines.
type Record struct {
	Object   []byte
	Metadata []byte
}

// HasMetadata reports whether the record carries metadata.
func (r Record) HasMetadata() bool {
	return r.Metadata != nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := Record{Object: cloneBytes(r.Object)}
	if r.Metadata != nil {
		c.Metadata = make([]byte, len(r.Metadata))
		copy(c.Metadata, r.Metadata)
	}
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// ReadTx is a read transaction. It is only valid inside the callback it was passed to.
type ReadTx interface {
	// Get returns the record stored under (collection, key).
	// The boolean return value indicates whether a record was found.
	// The returned record is a copy and safe to keep after the transaction ends.
	Get(collection, key string) (record Record, ok bool, err error)

	// Keys returns all keys of a collection in ascending order.
	// An unknown collection yields an empty result, not an error.
	Keys(collection string) (keys []string, err error)

	// Collections returns the names of all non-empty collections in ascending order.
	Collections() (collections []string, err error)
}

// WriteTx is a read-write transaction. Reads observe the writes made earlier in the same transaction.
type WriteTx interface {
	ReadTx

	// Put creates or replaces the record under (collection, key).
	// An empty collection fails with ErrInvalidCollection, an empty key with ErrInvalidKey.
	Put(collection, key string, record Record) (err error)

	// Delete removes the record under (collection, key).
	// Deleting a record that does not exist is not an error.
	// Empty collections and keys are rejected like in Put.
	Delete(collection, key string) (err error)
}

// KVDB defines an interface for transactional key-value database implementations.
// Records are addressed by a collection name and a key. All access happens inside
// transactions: View runs a read transaction and Update runs a write transaction.
// Implementations must allow only one write transaction at a time.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Transactions
	// --------------------------------------------------------------------------

	// View runs fn inside a read transaction.
	// The error returned by fn is returned unchanged.
	View(fn func(tx ReadTx) error) (err error)

	// Update runs fn inside a write transaction.
	// If fn returns an error (or panics) nothing is committed and the error is returned.
	// Otherwise all writes of fn are committed atomically before Update returns.
	Update(fn func(tx WriteTx) error) (err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the database state with the data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}
