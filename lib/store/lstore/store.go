package lstore

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/common"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/util"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"time"
)

var log = logger.GetLogger("store")

// asyncTask is a write queued on the connection
type asyncTask struct {
	fn         func(tx store.WriteTransaction) error
	exec       store.Executor
	completion func(err error)
}

type connectionImpl struct {
	name  string
	db    db.KVDB
	queue *util.LockFreeMPSC[asyncTask]
	done  chan struct{} // closed when the writer goroutine exited

	// closeMu orders AsyncWrite against Close, so no task is pushed after the queue was closed
	closeMu sync.RWMutex
	closed  bool
}

// Option configures a local connection
type Option func(c *connectionImpl)

// WithName sets the name used in log messages of the connection
func WithName(name string) Option {
	return func(c *connectionImpl) {
		c.name = name
	}
}

// NewLocalConnection creates a connection running transactions directly on database.
// Multiple connections may share one database, the engine serializes their writes.
// Each connection starts one writer goroutine for its async queue, which runs until Close.
func NewLocalConnection(database db.KVDB, opts ...Option) store.IConnection {
	c := &connectionImpl{
		name:  "local",
		db:    database,
		queue: util.NewLockFreeMPSC[asyncTask](),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.writer()
	return c
}

// writer is the single consumer of the async queue.
// Tasks are committed in queue order, each completion is handed to the executor of its task.
func (c *connectionImpl) writer() {
	defer close(c.done)

	for task := range c.queue.Recv() {
		err := c.runWrite(task.fn)
		common.AsyncDone()
		if err != nil {
			log.Debugf("[%s] async write failed: %v", c.name, err)
		}
		completion := task.completion
		task.exec.Execute(func() {
			completion(err)
		})
	}
}

// runWrite runs fn inside one engine write transaction.
// A panic inside fn is converted to an error after the engine rolled back.
func (c *connectionImpl) runWrite(fn func(tx store.WriteTransaction) error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%s] panic in write transaction: %v", c.name, r)
			err = store.NewError(store.RetCInternalError, fmt.Sprintf("panic in write transaction: %v", r))
		}
		common.ObserveWrite(time.Since(start).Seconds(), err)
	}()

	return c.db.Update(func(tx db.WriteTx) error {
		return fn(store.NewWriteTransaction(tx))
	})
}

// runRead runs fn inside one engine read transaction, converting a panic to an error
func (c *connectionImpl) runRead(fn func(tx store.ReadTransaction) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[%s] panic in read transaction: %v", c.name, r)
			err = store.NewError(store.RetCInternalError, fmt.Sprintf("panic in read transaction: %v", r))
		}
	}()

	return c.db.View(func(tx db.ReadTx) error {
		return fn(store.NewReadTransaction(tx))
	})
}

func (c *connectionImpl) isClosed() bool {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	return c.closed
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (c *connectionImpl) Read(fn func(tx store.ReadTransaction) error) error {
	if c.isClosed() {
		return store.ErrClosed
	}
	common.CountTransaction(common.TxRead)
	return c.runRead(fn)
}

func (c *connectionImpl) Write(fn func(tx store.WriteTransaction) error) error {
	if c.isClosed() {
		return store.ErrClosed
	}
	common.CountTransaction(common.TxWrite)
	return c.runWrite(fn)
}

func (c *connectionImpl) AsyncWrite(fn func(tx store.WriteTransaction) error, exec store.Executor, completion func(err error)) {
	if completion == nil {
		completion = func(error) {}
	}
	if exec == nil {
		completion(store.NewError(store.RetCInvalidOperation, "async write without an executor for the completion"))
		return
	}

	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	if c.closed {
		exec.Execute(func() {
			completion(store.ErrClosed)
		})
		return
	}

	common.CountTransaction(common.TxAsync)
	common.AsyncQueued()
	c.queue.Push(&asyncTask{fn: fn, exec: exec, completion: completion})
}

func (c *connectionImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return c.db.GetInfo(), nil
}

// Close stops accepting async writes and blocks until all queued writes were committed
// and their completions handed to their executors.
// Calling Close from a completion running on InlineExecutor deadlocks.
func (c *connectionImpl) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	log.Debugf("[%s] closing, waiting for %d queued writes", c.name, c.queue.Len())
	c.queue.Close()
	<-c.done
	log.Debugf("[%s] connection closed", c.name)
	return nil
}
