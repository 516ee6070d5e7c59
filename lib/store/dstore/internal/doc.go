// Package internal provides the communication protocol structures and serialization
// logic for the dstore package. It defines the wire format used to transmit committed
// write transactions between the client side engine and the replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: A Command is the complete change set of one write transaction,
//     an ordered list of Put and Delete ops. Commands are serialized and proposed to the
//     RAFT cluster, and every replica applies one command inside one transaction of its
//     local engine.
//
//   - Query System: Defines read operations (Get, Keys, Collections, Dump, GetDBInfo).
//     Queries are executed locally on the state machine and therefore do not require
//     serialization.
//
// Command Format:
//
//	- 4 bytes: Op count (uint32, big endian)
//	- per op:
//	  - 1 byte: Op type (Put, Delete)
//	  - 4 bytes: Collection length (uint32, big endian)
//	  - N bytes: Collection
//	  - 4 bytes: Key length (uint32, big endian)
//	  - N bytes: Key
//	  - Put only: 4 bytes record length followed by the record framed with db.EncodeRecord
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
