// Package dstore implements a replicated transactional engine using the Dragonboat
// RAFT consensus library. It provides a db.KVDB whose committed state is kept by a
// state machine on every replica of a shard, so the typed layers (store, lstore, repo)
// run unchanged on top of a cluster.
//
// Architecture:
//
//   - Engine Client: NewDistributedDB returns a db.KVDB. Write transactions are staged
//     locally; reads inside a write transaction see the staged changes on top of the
//     replicated state. On commit the complete change set is proposed as one command.
//     Failed or panicking transactions are never proposed.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine (KVStateMachine) that owns a
//     local db.KVDB created by a store.DBFactory. Every raft entry is applied inside one
//     write transaction of that engine, so a commit is atomic on every replica.
//
//   - Communication Protocol: Defined in the internal package (Command and Query).
//
// Write Operations:
//
//  1. The write transaction callback stages Put and Delete ops
//  2. The ops are serialized into a single Command
//  3. The Command is proposed to the RAFT cluster via SyncPropose
//  4. Once committed, each replica applies it (Update in statemachine.go)
//  5. The result code is returned to the client as a *store.Error on failure
//
// Read Operations:
//
//   - Linearizable Reads: Get, Keys, Collections and Save use SyncRead.
//   - Stale Reads: GetInfo uses StaleRead.
//
// Each read is its own query, so two reads of one transaction can observe different
// commits. The engine therefore does not advertise db.FeatureIsolatedReads.
// Writers on different clients are not serialized against each other: a commit
// replaces what it writes, it does not detect conflicting concurrent transactions.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a short delay,
//	up to 5 attempts. All operations use the configured timeout.
//
// Snapshotting and Recovery:
//
//	PrepareSnapshot dumps the local engine while updates are paused, SaveSnapshot
//	streams that dump and RecoverFromSnapshot loads it with db.KVDB.Load. The dump
//	format is the portable format of the db package.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory),
//	    shardConfig)
//	if err != nil { ... }
//
//	engine := dstore.NewDistributedDB(nh, shardID, 5*time.Second)
//	conn := lstore.NewLocalConnection(engine)
package dstore
