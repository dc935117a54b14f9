// Package engine implements the task dispatcher: it executes a validated
// graph wave by wave, skipping units whose content hash is already cached.
//
// Per unit, in wave order:
//  1. blocked check: any failed direct dependency fails the unit with
//     blocked-by-dependency, without planning or executing it
//  2. planning (internal/planner): skip on a usable cache entry, otherwise
//     execute
//  3. execution through a dedup.Group keyed on the content hash, inside a
//     pool bounded by max concurrency (sourcegraph/conc)
//
// The deduplicated producer applies the per-unit timeout, invokes the
// Executor, and writes the result to the cache. Successful results and
// executor errors are cached; timeouts and cancellations are not.
//
// Failures stay local: siblings keep running and only transitive dependents
// of a failed unit are blocked. Every unit appears in the RunSummary
// exactly once.
package engine
