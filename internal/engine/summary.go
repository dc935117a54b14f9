package engine

import (
	"time"

	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/planner"
)

// UnitResult is the terminal state of one unit in a run.
type UnitResult struct {
	UnitID  string         `json:"unit_id"`
	Wave    int            `json:"wave"`
	Hash    ir.Hash        `json:"hash,omitempty"`
	Outcome ir.Outcome     `json:"outcome"`
	Reason  planner.Reason `json:"reason,omitempty"`
	Output  ir.IRObject    `json:"output,omitempty"`

	// Failure and Error are set when Outcome is failed.
	Failure FailureKind `json:"failure,omitempty"`
	Error   string      `json:"error,omitempty"`
	Err     error       `json:"-"`

	Duration time.Duration `json:"duration_ns"`

	// Shared is true when the execution was deduplicated with another unit
	// that has the same content hash.
	Shared bool `json:"shared,omitempty"`

	// Seq is the logical completion order within the run.
	Seq int64 `json:"seq"`
}

// WaveReport aggregates one wave.
type WaveReport struct {
	Index    int           `json:"index"`
	Units    []string      `json:"units"`
	Executed int           `json:"executed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// RunSummary describes a complete run. Every unit of the graph appears in
// Results exactly once, ordered by wave and then by id.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Waves       [][]string   `json:"waves"`
	WaveReports []WaveReport `json:"wave_reports"`
	Results     []UnitResult `json:"results"`

	Executed  int  `json:"executed"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled,omitempty"`
}

// Result returns the result for one unit.
func (s *RunSummary) Result(id string) (UnitResult, bool) {
	for _, r := range s.Results {
		if r.UnitID == id {
			return r, true
		}
	}
	return UnitResult{}, false
}

// Succeeded reports whether no unit failed.
func (s *RunSummary) Succeeded() bool {
	return s.Failed == 0
}

// Outcomes returns the outcome of each unit keyed by id.
func (s *RunSummary) Outcomes() map[string]ir.Outcome {
	out := make(map[string]ir.Outcome, len(s.Results))
	for _, r := range s.Results {
		out[r.UnitID] = r.Outcome
	}
	return out
}

func (s *RunSummary) tally() {
	s.Executed, s.Skipped, s.Failed = 0, 0, 0
	for i := range s.WaveReports {
		w := &s.WaveReports[i]
		w.Executed, w.Skipped, w.Failed = 0, 0, 0
	}
	for _, r := range s.Results {
		var wr *WaveReport
		if r.Wave >= 0 && r.Wave < len(s.WaveReports) {
			wr = &s.WaveReports[r.Wave]
		}
		switch r.Outcome {
		case ir.OutcomeExecuted:
			s.Executed++
			if wr != nil {
				wr.Executed++
			}
		case ir.OutcomeSkipped:
			s.Skipped++
			if wr != nil {
				wr.Skipped++
			}
		case ir.OutcomeFailed:
			s.Failed++
			if wr != nil {
				wr.Failed++
			}
		}
	}
}
