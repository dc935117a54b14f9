// Package graph builds and resolves the skill dependency graph.
//
// A Graph is built once per run from unit declarations. All structural
// validation (missing dependencies, cycles, unsatisfied capabilities,
// unhashable specs) happens in Build so that an invalid schedule fails
// before any unit executes. After Build the graph is read-only; Waves
// levels it into parallel-executable waves exactly once.
package graph
