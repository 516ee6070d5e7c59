package internal

import "github.com/ValentinKolb/oKV/lib/db"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet         QueryType = iota // Retrieve a record by collection and key.
	QueryTKeys                         // List the keys of a collection.
	QueryTCollections                  // List all non-empty collections.
	QueryTDump                         // Retrieve a consistent dump of the whole database.
	QueryTGetDBInfo                    // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTKeys:
		return "Keys"
	case QueryTCollections:
		return "Collections"
	case QueryTDump:
		return "Dump"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead.
// Queries are executed on the local replica and are never serialized.
type Query struct {
	Type       QueryType // The type of Query to perform.
	Collection string    // The collection for the Query (empty for some queries).
	Key        string    // The key for the Query (empty for some queries).
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types or predefined structs ([]string, []byte, db.DatabaseInfo).
type QueryResult struct {
	Ok     bool
	Record db.Record
}
