// Package lockmgr implements named locks on top of the typed object store.
//
// Locks are Lock values in the "Locks" collection, accessed through a repo.Repository.
// The lock manager has no other internal state, so any number of lock managers can be
// created on connections to the same engine and all of them see the same locks.
//
// Implementation Approach:
//
//	- Lock Acquisition: A single write transaction reads the current holder and writes
//	  a new Lock only if there is none or it is expired. Engines run one write
//	  transaction at a time, which makes the check and the write atomic.
//	  The owner ID is a random UUID.
//
//	- Timeouts: A lock can carry an expiry, stored as record metadata. An expired lock
//	  is treated as free by AcquireLock and as absent by Inspect.
//
//	- Safe Release: ReleaseLock removes the lock only if the owner ID matches.
//
// Distributed Considerations:
//
//	On a dstore engine the check and the write are proposed as one command, but two
//	clients can both read "free" before either commits. Locks across dstore clients
//	should therefore be acquired through one shared connection.
package lockmgr
