// Package lstore implements the in-process connection (store.IConnection) on top of
// any db.KVDB engine.
//
// Key Features:
//   - Sync reads and writes run directly as engine transactions on the calling goroutine
//   - Async writes are queued in a lock-free MPSC queue (util.LockFreeMPSC) and committed
//     by a single writer goroutine per connection, in the order they were issued
//   - Completions of async writes run on the executor chosen by the caller
//   - Panics inside transaction callbacks are recovered and reported as errors
//
// Implementation Details:
//
//   - Write Queue: Every connection owns one queue and one writer goroutine. Writes issued
//     from one goroutine commit in issue order. There is no ordering across connections,
//     the engine only guarantees that write transactions are serialized.
//
//   - Close: Close marks the connection closed, closes the queue and waits until the writer
//     goroutine committed every queued write and handed its completion to the executor.
//     The engine stays open, it may be shared by other connections.
//
// Usage Example:
//
//	database := maple.NewMapleDB(nil)
//	conn := lstore.NewLocalConnection(database)
//	defer conn.Close()
//
//	err := conn.Write(func(tx store.WriteTransaction) error {
//		return tx.WriteAtIndex(store.Index{Collection: "Events", Key: "1"}, data, nil)
//	})
//
//	conn.AsyncWrite(fn, store.GoExecutor, func(err error) {
//		// runs on a new goroutine after commit
//	})
package lstore
