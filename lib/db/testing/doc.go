// Package testing provides standardised tests and benchmarks for
// database engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite for the transactional KVDB contract (read-your-writes,
//     rollback on error and panic, atomic visibility of commits, sorted key enumeration,
//     nil versus empty metadata, dump round trips)
//   - benchmark: Performance tests for measuring throughput of common transaction shapes
//
// Example usage:
//
//	// Creating a factory function for your implementation, each call returns an empty database
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
