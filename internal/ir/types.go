package ir

// UnitDecl is the declaration of one schedulable unit ("skill"/task) as
// supplied by an external planner stage or a graph file.
type UnitDecl struct {
	ID       string   `json:"id"`
	Spec     IRObject `json:"spec,omitempty"`
	Requires []string `json:"requires,omitempty"` // Dependency unit ids
	Executor string   `json:"executor,omitempty"` // Handler name
	Provides []string `json:"provides,omitempty"` // Capability tags offered
	Needs    []string `json:"needs,omitempty"`    // Capability tags required
}

// Outcome is the per-unit result classification of a run.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
)
