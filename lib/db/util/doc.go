// Package util provides utility components for database engines and the layers above them.
//
// The package contains:
//   - statistics: Distribution statistics and a SizeHistogram for tracking record sizes
//   - functions: Seeded hash functions and seed generation
//   - lockfreempsc: A lock-free Multi-Producer Single-Consumer (MPSC) queue built for high
//     throughput and low latency. It backs the asynchronous write queue of local store
//     connections.
//
// LockFreeMPSC guarantees:
//   - Unbounded size, limited only by available memory
//   - Any number of goroutines can Push concurrently
//   - A single consumer reads values from the Recv channel
//   - Items pushed by one goroutine are delivered in push order. Across producers the order is
//     determined by which Push completes first.
//   - Items pushed before Close are still delivered, Recv is closed after the last one
package util
