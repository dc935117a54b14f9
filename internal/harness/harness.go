package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/skillwave/internal/cache"
	"github.com/roach88/skillwave/internal/compiler"
	"github.com/roach88/skillwave/internal/engine"
	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/planner"
	"github.com/roach88/skillwave/internal/testutil"
)

// Result is the recorded outcome of a scenario.
type Result struct {
	Runs []RunTrace
}

// RunTrace records one run. Units are ordered by wave, then id.
type RunTrace struct {
	RunID string
	Units []UnitTrace

	// Calls counts executor invocations per unit; units never invoked
	// are absent.
	Calls map[string]int

	Summary *engine.RunSummary
}

// UnitTrace is the deterministic part of a unit result.
type UnitTrace struct {
	UnitID  string
	Wave    int
	Outcome ir.Outcome
	Reason  planner.Reason
	Failure engine.FailureKind
}

// Unit returns the trace for one unit.
func (r RunTrace) Unit(id string) (UnitTrace, bool) {
	for _, u := range r.Units {
		if u.UnitID == id {
			return u, true
		}
	}
	return UnitTrace{}, false
}

// TotalCalls returns the number of executor invocations in the run.
func (r RunTrace) TotalCalls() int {
	n := 0
	for _, c := range r.Calls {
		n += c
	}
	return n
}

// Run executes every run of the scenario over one fresh in-memory cache.
func Run(s *Scenario) (*Result, error) {
	decls, err := compiler.LoadFile(s.Graph)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}

	logger := slog.New(slog.DiscardHandler)
	c, err := cache.New(cache.DefaultCapacity,
		cache.WithReplayFailures(s.ReplayFailures),
		cache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	runIDs := make([]string, len(s.Runs))
	for i := range runIDs {
		runIDs[i] = fmt.Sprintf("run-%d", i+1)
	}
	clock := testutil.NewStepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)

	result := &Result{}
	for i, step := range s.Runs {
		if decls, err = applyEdits(decls, step.Edit); err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		g, err := graph.Build(decls)
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		if err := checkIDs(g, step.Fail, "fail"); err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		if err := checkIDs(g, step.Force, "force"); err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}

		eng, err := engine.New(c,
			engine.WithMaxConcurrency(4),
			engine.WithLogger(logger),
			engine.WithClock(clock.Now),
			engine.WithRunIDGenerator(engine.NewFixedGenerator(runIDs[i])),
			engine.WithPlannerOptions(
				planner.WithRelaxedUpstreamRule(s.Relaxed),
				planner.WithForced(step.Force...),
			),
		)
		if err != nil {
			return nil, err
		}

		exec := testutil.NewRecordingExecutor().FailOn(step.Fail...)
		summary, err := eng.Run(context.Background(), g, exec)
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", i, err)
		}
		result.Runs = append(result.Runs, traceOf(summary, exec, g))
	}
	return result, nil
}

func traceOf(summary *engine.RunSummary, exec *testutil.RecordingExecutor, g *graph.Graph) RunTrace {
	rt := RunTrace{
		RunID:   summary.RunID,
		Calls:   make(map[string]int),
		Summary: summary,
	}
	for _, r := range summary.Results {
		rt.Units = append(rt.Units, UnitTrace{
			UnitID:  r.UnitID,
			Wave:    r.Wave,
			Outcome: r.Outcome,
			Reason:  r.Reason,
			Failure: r.Failure,
		})
	}
	for _, id := range g.IDs() {
		if n := exec.Calls(id); n > 0 {
			rt.Calls[id] = n
		}
	}
	return rt
}

// applyEdits returns decls with the edited specs replaced. The input slice
// is not modified.
func applyEdits(decls []ir.UnitDecl, edits map[string]map[string]any) ([]ir.UnitDecl, error) {
	if len(edits) == 0 {
		return decls, nil
	}
	out := make([]ir.UnitDecl, len(decls))
	copy(out, decls)

	for id, raw := range edits {
		spec, err := ir.ObjectFromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("edit %s: %w", id, err)
		}
		found := false
		for i := range out {
			if out[i].ID == id {
				out[i].Spec = spec
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("edit: unknown unit %q", id)
		}
	}
	return out, nil
}

func checkIDs(g *graph.Graph, ids []string, field string) error {
	for _, id := range ids {
		if _, ok := g.Unit(id); !ok {
			return fmt.Errorf("%s: unknown unit %q", field, id)
		}
	}
	return nil
}
