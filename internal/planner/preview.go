package planner

import (
	"context"

	"github.com/roach88/skillwave/internal/graph"
)

// WavePlan holds the predicted decisions for one wave, in id order.
type WavePlan struct {
	Index     int
	Decisions []Decision
}

// Preview predicts the decisions a run of g would make without executing
// anything. A dependency counts as executed when its own predicted
// decision executes. Failures cannot be predicted, so units behind a
// replayed failure are still planned.
//
// Lookups go through Peek: the cache's contents and recency are left as
// they were, and backend entries are not promoted into memory.
func (p *Planner) Preview(ctx context.Context, g *graph.Graph) []WavePlan {
	decided := make(map[string]Decision, g.Len())
	var plans []WavePlan

	for i, ids := range g.Waves() {
		wp := WavePlan{Index: i, Decisions: make([]Decision, 0, len(ids))}
		for _, id := range ids {
			unit, _ := g.Unit(id)
			deps := make([]DependencyState, 0, len(unit.Requires))
			for _, dep := range unit.Requires {
				dd := decided[dep]
				deps = append(deps, DependencyState{
					UnitID:   dep,
					Hash:     dd.Hash,
					Executed: dd.ShouldExecute(),
				})
			}
			d := p.traced(ctx, "planner.Preview", unit, deps, p.cache.Peek)
			decided[id] = d
			wp.Decisions = append(wp.Decisions, d)
		}
		plans = append(plans, wp)
	}
	return plans
}
