// Package cmd implements the command-line interface of oKV. Every command opens the
// engine selected with --engine, runs its operations through the typed repositories
// and closes the engine again, waiting for all queued async writes.
//
// The package is organized into several subpackages:
//
//   - event: The event example (add, create-some, get, ls, rm)
//   - city: The states and cities example with the YAML data loader (import, ls, get)
//   - lock: Commands for locking operations (acquire, release, inspect)
//   - dbcmd: Engine level commands (info, dump, restore, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See okv -help for a list of all commands.
package cmd
