// Package harness runs conformance scenarios against the engine.
//
// A scenario names a graph file and a sequence of runs over one shared
// execution cache. Each run may inject executor failures, force units or
// edit unit specs, and declares the outcomes it expects. The harness
// records a deterministic trace of every run for golden-file comparison.
//
// # Scenario Format
//
//	name: diamond_incremental
//	description: "Second run skips everything"
//	graph: ../graphs/diamond.yaml   # relative to the scenario file
//	relaxed: false                  # planner upstream rule
//	replay_failures: false          # cache failed-entry policy
//	runs:
//	  - expect:
//	      outcomes: {a: executed, b: executed}
//	  - fail: [b]                   # executor fails these units
//	    force: [a]                  # planner forces these units
//	    edit:                       # replace specs from this run on
//	      b: {name: b2}
//	    expect:
//	      outcomes: {a: executed, b: failed}
//	      reasons: {a: forced}
//	      failures: {b: executor-error}
//	      calls: 2                  # total executor invocations
//
// # Determinism
//
// Run ids come from a fixed generator (run-1, run-2, ...) and the engine
// clock is a step clock, so traces are byte-identical across executions.
package harness
