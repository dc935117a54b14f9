package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/skillwave/internal/ir"
)

// snapshot converts a result to plain maps for canonical JSON. Durations
// and wall-clock timestamps are left out so the output is deterministic.
func snapshot(name string, r *Result) map[string]any {
	runs := make([]any, len(r.Runs))
	for i, run := range r.Runs {
		units := make([]any, len(run.Units))
		for j, u := range run.Units {
			m := map[string]any{
				"unit":    u.UnitID,
				"wave":    u.Wave,
				"outcome": string(u.Outcome),
			}
			if u.Reason != "" {
				m["reason"] = string(u.Reason)
			}
			if u.Failure != "" {
				m["failure"] = string(u.Failure)
			}
			units[j] = m
		}
		calls := make(map[string]any, len(run.Calls))
		for id, n := range run.Calls {
			calls[id] = n
		}
		runs[i] = map[string]any{
			"run_id": run.RunID,
			"units":  units,
			"calls":  calls,
		}
	}
	return map[string]any{
		"scenario": name,
		"runs":     runs,
	}
}

// MarshalTrace renders a result as canonical JSON.
func MarshalTrace(name string, r *Result) ([]byte, error) {
	return ir.MarshalCanonical(snapshot(name, r))
}

// RunWithGolden executes a scenario, checks its expectations and compares
// the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	for _, e := range Check(s, result) {
		t.Error(e)
	}

	traceJSON, err := MarshalTrace(s.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, traceJSON)
	return result, nil
}
