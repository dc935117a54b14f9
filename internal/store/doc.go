// Package store provides SQLite-backed persistence for skillwave.
//
// The store has two roles:
//   - cache backend: cache_entries holds execution results keyed by content
//     hash; *Store implements cache.Backend so an in-memory cache can
//     read through and write through to it across process restarts
//   - run log: runs and unit_results record every RunSummary; *Store
//     implements engine.Recorder
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Outputs are stored as RFC 8785 canonical JSON (see internal/ir), so
// identical outputs are byte-identical on disk.
package store
