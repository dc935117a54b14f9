package harness

import (
	"fmt"
	"sort"
	"strings"
)

// AssertionError is returned when a run does not match its expectation.
type AssertionError struct {
	Run      int    // 1-based run number
	UnitID   string // Empty for run-level checks
	Field    string // outcome, reason, failure, calls
	Expected string
	Actual   string
	Trace    RunTrace
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	if e.UnitID != "" {
		fmt.Fprintf(&buf, "run %d: unit %s: %s mismatch\n", e.Run, e.UnitID, e.Field)
	} else {
		fmt.Fprintf(&buf, "run %d: %s mismatch\n", e.Run, e.Field)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRun trace (%s):\n", e.Trace.RunID)
	for _, u := range e.Trace.Units {
		fmt.Fprintf(&buf, "  wave %d %-12s %-8s %s %s\n", u.Wave, u.UnitID, u.Outcome, u.Reason, u.Failure)
	}
	return buf.String()
}

// Check compares every run of the result against the scenario's
// expectations and returns all mismatches.
func Check(s *Scenario, r *Result) []error {
	var errs []error
	if len(r.Runs) != len(s.Runs) {
		return []error{fmt.Errorf("scenario declares %d runs, result has %d", len(s.Runs), len(r.Runs))}
	}

	for i, step := range s.Runs {
		trace := r.Runs[i]
		exp := step.Expect

		for _, id := range sortedKeys(exp.Outcomes) {
			u, ok := trace.Unit(id)
			if !ok {
				errs = append(errs, &AssertionError{Run: i + 1, UnitID: id, Field: "outcome",
					Expected: string(exp.Outcomes[id]), Actual: "unit not in run", Trace: trace})
				continue
			}
			if u.Outcome != exp.Outcomes[id] {
				errs = append(errs, &AssertionError{Run: i + 1, UnitID: id, Field: "outcome",
					Expected: string(exp.Outcomes[id]), Actual: string(u.Outcome), Trace: trace})
			}
		}

		for _, id := range sortedKeys(exp.Reasons) {
			u, _ := trace.Unit(id)
			if u.Reason != exp.Reasons[id] {
				errs = append(errs, &AssertionError{Run: i + 1, UnitID: id, Field: "reason",
					Expected: string(exp.Reasons[id]), Actual: string(u.Reason), Trace: trace})
			}
		}

		for _, id := range sortedKeys(exp.Failures) {
			u, _ := trace.Unit(id)
			if u.Failure != exp.Failures[id] {
				errs = append(errs, &AssertionError{Run: i + 1, UnitID: id, Field: "failure",
					Expected: string(exp.Failures[id]), Actual: string(u.Failure), Trace: trace})
			}
		}

		if exp.Calls != nil && trace.TotalCalls() != *exp.Calls {
			errs = append(errs, &AssertionError{Run: i + 1, Field: "calls",
				Expected: fmt.Sprint(*exp.Calls), Actual: fmt.Sprint(trace.TotalCalls()), Trace: trace})
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
