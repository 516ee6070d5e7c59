// Package store provides the transaction surface of the object store: connections,
// typed access to records by index and a unified error type.
// It sits between the db.KVDB engines and the typed repositories of the repo package.
//
// Key Components:
//
//   - IConnection: Runs read and write transactions against one engine. Sync writes
//     commit before returning, async writes are queued and committed in issue order by
//     a single writer per connection. Completions of async writes are delivered through
//     an Executor chosen by the caller.
//
//   - ReadTransaction / WriteTransaction: The accessor passed to transaction callbacks.
//     Records are addressed by an Index (collection + key). Objects are raw bytes here,
//     decoding is done by the repo package.
//
//   - Executor: Where completion callbacks run. InlineExecutor runs them on the writer,
//     GoExecutor on a new goroutine and QueueExecutor on a dedicated run loop, which
//     gives a serial queue similar to a UI main thread.
//
//   - Error System: Error carries a RetCode and a message. errors.Is matches on the
//     code, so errors.Is(err, ErrClosed) works for every closed-connection error.
//
//   - DBFactory: A function type that creates db.KVDB instances for connections and
//     replicated state machines.
//
// Implementations:
//
//	- lstore: The connection implementation over a single db.KVDB.
//	- dstore: A db.KVDB replicated with RAFT. Wrap it with lstore to get a connection.
package store
