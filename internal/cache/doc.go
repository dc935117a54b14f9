// Package cache provides the execution cache: a bounded, thread-safe map
// from content hash to the result of executing a unit.
//
// Entries are immutable values. The in-memory layer is an LRU
// (hashicorp/golang-lru); an optional Backend (see internal/store) gives
// read-through and write-through persistence across runs.
//
// Failed executions are cached but, by default, are not usable: Usable
// reports false for them so the planner retries the unit. WithReplayFailures
// turns them into terminal outcomes.
package cache
