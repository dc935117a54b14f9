package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skillwave/internal/engine"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/planner"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			_, err = RunWithGolden(t, s)
			require.NoError(t, err)
		})
	}
}

func diamondScenario(runs ...RunStep) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline scenario",
		Graph:       "testdata/graphs/diamond.yaml",
		Runs:        runs,
	}
}

func TestRun_IncrementalRerun(t *testing.T) {
	s := diamondScenario(RunStep{}, RunStep{})

	r, err := Run(s)
	require.NoError(t, err)
	require.Len(t, r.Runs, 2)

	first, second := r.Runs[0], r.Runs[1]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "run-2", second.RunID)
	assert.Equal(t, 4, first.TotalCalls())
	assert.Equal(t, 0, second.TotalCalls())

	for _, u := range second.Units {
		assert.Equal(t, ir.OutcomeSkipped, u.Outcome, u.UnitID)
		assert.Equal(t, planner.ReasonCacheHit, u.Reason, u.UnitID)
	}
}

func TestRun_TraceOrderedByWave(t *testing.T) {
	r, err := Run(diamondScenario(RunStep{}))
	require.NoError(t, err)

	var ids []string
	var waves []int
	for _, u := range r.Runs[0].Units {
		ids = append(ids, u.UnitID)
		waves = append(waves, u.Wave)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, []int{0, 1, 1, 2}, waves)
}

func TestRun_EditPersistsAcrossRuns(t *testing.T) {
	s := diamondScenario(
		RunStep{},
		RunStep{Edit: map[string]map[string]any{"a": {"name": "a2"}}},
		RunStep{},
	)

	r, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, 4, r.Runs[1].TotalCalls(), "editing the root re-runs everything")
	assert.Equal(t, 0, r.Runs[2].TotalCalls(), "the edit is kept, so the third run hits")
}

func TestRun_InjectedFailure(t *testing.T) {
	r, err := Run(diamondScenario(RunStep{Fail: []string{"a"}}))
	require.NoError(t, err)

	trace := r.Runs[0]
	a, _ := trace.Unit("a")
	assert.Equal(t, engine.FailureExecutor, a.Failure)
	for _, id := range []string{"b", "c", "d"} {
		u, ok := trace.Unit(id)
		require.True(t, ok)
		assert.Equal(t, engine.FailureBlocked, u.Failure, id)
	}
	assert.Equal(t, map[string]int{"a": 1}, trace.Calls)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		s       *Scenario
		wantErr string
	}{
		{
			name:    "missing graph",
			s:       &Scenario{Name: "x", Graph: "testdata/graphs/nope.yaml", Runs: []RunStep{{}}},
			wantErr: "load graph",
		},
		{
			name:    "unknown fail id",
			s:       diamondScenario(RunStep{Fail: []string{"zz"}}),
			wantErr: `runs[0]: fail: unknown unit "zz"`,
		},
		{
			name:    "unknown force id",
			s:       diamondScenario(RunStep{Force: []string{"zz"}}),
			wantErr: `runs[0]: force: unknown unit "zz"`,
		},
		{
			name:    "unknown edit id",
			s:       diamondScenario(RunStep{}, RunStep{Edit: map[string]map[string]any{"zz": {}}}),
			wantErr: `runs[1]: edit: unknown unit "zz"`,
		},
		{
			name:    "float in edit",
			s:       diamondScenario(RunStep{Edit: map[string]map[string]any{"a": {"x": 1.5}}}),
			wantErr: "edit a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheck_ReportsMismatches(t *testing.T) {
	calls := 3
	s := diamondScenario(RunStep{Expect: Expect{
		Outcomes: map[string]ir.Outcome{"a": ir.OutcomeSkipped, "zz": ir.OutcomeExecuted},
		Reasons:  map[string]planner.Reason{"b": planner.ReasonForced},
		Failures: map[string]engine.FailureKind{"c": engine.FailureTimeout},
		Calls:    &calls,
	}})

	r, err := Run(s)
	require.NoError(t, err)

	errs := Check(s, r)
	require.Len(t, errs, 5)

	var fields []string
	for _, e := range errs {
		var ae *AssertionError
		require.ErrorAs(t, e, &ae)
		fields = append(fields, ae.UnitID+"/"+ae.Field)
	}
	assert.Equal(t, []string{"a/outcome", "zz/outcome", "b/reason", "c/failure", "/calls"}, fields)

	msg := errs[0].Error()
	assert.Contains(t, msg, "run 1: unit a: outcome mismatch")
	assert.Contains(t, msg, "Expected: skipped")
	assert.Contains(t, msg, "Actual: executed")
	assert.Contains(t, msg, "Run trace (run-1)")
}

func TestCheck_RunCountMismatch(t *testing.T) {
	s := diamondScenario(RunStep{}, RunStep{})
	errs := Check(s, &Result{Runs: []RunTrace{{}}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "declares 2 runs, result has 1")
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	s := diamondScenario(RunStep{Fail: []string{"b"}}, RunStep{})

	r1, err := Run(s)
	require.NoError(t, err)
	r2, err := Run(s)
	require.NoError(t, err)

	b1, err := MarshalTrace(s.Name, r1)
	require.NoError(t, err)
	b2, err := MarshalTrace(s.Name, r2)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
	assert.NotContains(t, string(b1), `"reason":""`)
}
