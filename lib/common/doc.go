// Package common provides the configuration, logging and metrics shared by the
// CLI and the library packages.
//
// Key Components:
//
//   - StoreConfig: The configuration of the CLI (engine, path, codec, decode error
//     policy, log level) plus the Dragonboat parameters of the raft engine. It renders
//     itself as a table with String and converts to Dragonboat configs.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
//     Packages obtain their logger with logger.GetLogger("store"), "repo", "engine",
//     "lockmgr" or "cli". InitLoggers installs the factory and sets the levels.
//
//   - Metrics: A VictoriaMetrics set with transaction counters, write latency, async
//     queue depth and decode failures, written in Prometheus text format.
package common
