package store

import (
	"context"
	"github.com/ValentinKolb/oKV/lib/db/util"
	"sync"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Executors for async completions
// --------------------------------------------------------------------------

// Executor runs completion callbacks of async writes.
// The caller picks the execution context for every async call.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// InlineExecutor runs the completion directly on the writer goroutine of the connection.
// Completions must be short, the next queued write waits for them.
var InlineExecutor Executor = ExecutorFunc(func(fn func()) { fn() })

// GoExecutor runs every completion on a new goroutine
var GoExecutor Executor = ExecutorFunc(func(fn func()) { go fn() })

// QueueExecutor collects completions in an unbounded FIFO queue owned by the caller.
// The caller decides where they run by calling Run or Drain, e.g. from a main loop.
// Run and Drain must not be called concurrently.
type QueueExecutor struct {
	queue   *util.LockFreeMPSC[func()]
	pending atomic.Int64

	// closeMu orders Execute against Close, a push never races the queue shutdown
	closeMu sync.RWMutex
}

// NewQueueExecutor creates an empty queue executor
func NewQueueExecutor() *QueueExecutor {
	return &QueueExecutor{queue: util.NewLockFreeMPSC[func()]()}
}

// Execute queues fn. Completions queued after Close are run on a new goroutine.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *QueueExecutor) Execute(fn func()) {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.queue.IsClosed() {
		go fn()
		return
	}
	q.pending.Add(1)
	q.queue.Push(&fn)
}

// Run executes queued completions until ctx is done or the executor was closed and emptied.
func (q *QueueExecutor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn, ok := <-q.queue.Recv():
			if !ok {
				return
			}
			(*fn)()
			q.pending.Add(-1)
		}
	}
}

// Drain executes completions until none is pending and returns how many ran.
// Completions queued by a running completion are executed as well.
func (q *QueueExecutor) Drain() int {
	n := 0
	for q.pending.Load() > 0 {
		fn, ok := <-q.queue.Recv()
		if !ok {
			break
		}
		(*fn)()
		q.pending.Add(-1)
		n++
	}
	return n
}

// Pending returns the number of queued completions that did not run yet
func (q *QueueExecutor) Pending() int {
	return int(q.pending.Load())
}

// Close stops accepting completions. Already queued completions are still delivered by Run.
func (q *QueueExecutor) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	q.queue.Close()
}
