package common

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
)

// --------------------------------------------------------------------------
// Metrics (Prometheus text format)
// --------------------------------------------------------------------------

// Metrics is the set holding every metric of the typed store.
// `okv db info --metrics` prints it with WritePrometheus.
var Metrics = metrics.NewSet()

var (
	readTransactions  = Metrics.NewCounter(`okv_transactions_total{kind="read"}`)
	writeTransactions = Metrics.NewCounter(`okv_transactions_total{kind="write"}`)
	asyncTransactions = Metrics.NewCounter(`okv_transactions_total{kind="async"}`)
	failedWrites      = Metrics.NewCounter(`okv_transaction_failures_total`)
	decodeFailures    = Metrics.NewCounter(`okv_decode_failures_total`)
	writeDuration     = Metrics.NewHistogram(`okv_write_duration_seconds`)
	queuedWrites      = Metrics.NewCounter(`okv_async_queue_depth`)
)

// TransactionKind names the transaction counters
type TransactionKind int

const (
	TxRead TransactionKind = iota
	TxWrite
	TxAsync
)

// CountTransaction increments the transaction counter of the given kind
func CountTransaction(kind TransactionKind) {
	switch kind {
	case TxRead:
		readTransactions.Inc()
	case TxWrite:
		writeTransactions.Inc()
	case TxAsync:
		asyncTransactions.Inc()
	}
}

// ObserveWrite records the duration and outcome of a write transaction
func ObserveWrite(seconds float64, err error) {
	writeDuration.Update(seconds)
	if err != nil {
		failedWrites.Inc()
	}
}

// CountDecodeFailure increments the decode failure counter of the given collection
func CountDecodeFailure(collection string) {
	decodeFailures.Inc()
	Metrics.GetOrCreateCounter(fmt.Sprintf(`okv_decode_failures_by_collection_total{collection=%q}`, collection)).Inc()
}

// AsyncQueued and AsyncDone track the number of async writes waiting in connection queues
func AsyncQueued() { queuedWrites.Inc() }
func AsyncDone()   { queuedWrites.Dec() }

// DecodeFailures returns the total number of decode failures so far
func DecodeFailures() uint64 {
	return decodeFailures.Get()
}

// WriteMetrics writes all metrics in Prometheus text format to w
func WriteMetrics(w io.Writer) {
	Metrics.WritePrometheus(w)
}
