package store

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by a connection or a state machine.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IConnection is the handle used to run transactions against an engine.
// Sync operations block the caller for one transaction, async writes are queued on
// the connection and committed in issue order by a single writer.
type IConnection interface {
	// Read runs fn inside a new read transaction.
	// The error returned by fn is returned unchanged.
	Read(fn func(tx ReadTransaction) error) (err error)

	// Write runs fn inside a new write transaction and commits before returning.
	// If fn returns an error or panics nothing is committed and the error is returned.
	Write(fn func(tx WriteTransaction) error) (err error)

	// AsyncWrite queues fn as a write transaction and returns immediately.
	// After commit (or failure) completion is called with the result on exec.
	// Async writes on one connection commit in the order AsyncWrite was called.
	// A nil exec is reported synchronously through completion with RetCInvalidOperation.
	AsyncWrite(fn func(tx WriteTransaction) error, exec Executor, completion func(err error))

	// GetDBInfo returns metadata about the database underlying the connection.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)

	// Close stops accepting async writes and waits until every queued write completed.
	// The engine is not closed, it may be shared with other connections.
	Close() (err error)
}

// Read runs fn in a read transaction on conn and returns its result
func Read[R any](conn IConnection, fn func(tx ReadTransaction) (R, error)) (R, error) {
	var result R
	err := conn.Read(func(tx ReadTransaction) error {
		var err error
		result, err = fn(tx)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// Write runs fn in a write transaction on conn and returns its result after commit
func Write[R any](conn IConnection, fn func(tx WriteTransaction) (R, error)) (R, error) {
	var result R
	err := conn.Write(func(tx WriteTransaction) error {
		var err error
		result, err = fn(tx)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message. Err optionally holds the engine error that caused it.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code.
// This makes errors.Is(err, ErrClosed) match every error with RetCClosed.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// wrapError wraps an engine error, keeping errors that already are *Error
func wrapError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, db.ErrInvalidCollection) || errors.Is(err, db.ErrInvalidKey) {
		return &Error{Code: RetCInvalidOperation, Msg: msg, Err: err}
	}
	return &Error{Code: RetCInternalError, Msg: msg, Err: err}
}

// ErrClosed is returned for operations on a closed connection
var ErrClosed = NewError(RetCClosed, "connection is closed")

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCClosed                              // 4: The connection is closed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
