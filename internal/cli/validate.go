package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/skillwave/internal/compiler"
	"github.com/roach88/skillwave/internal/graph"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Units  int               `json:"units"`
	Waves  [][]string        `json:"waves,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one structural problem in a graph file.
type ValidationIssue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	UnitID  string   `json:"unit_id,omitempty"`
	Cycle   []string `json:"cycle,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph-file>",
		Short: "Check a graph file without executing it",
		Long: `Load a graph file and run every structural check: duplicate ids,
unhashable specs, missing dependencies, cycles and unsatisfied capability
requirements. All problems are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	decls, err := compiler.LoadFile(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeLoadFailed, "failed to load graph", err)
	}
	f.VerboseLog("loaded %d unit(s) from %s", len(decls), path)

	result := ValidationResult{Units: len(decls)}
	for _, err := range graph.Validate(decls) {
		result.Errors = append(result.Errors, issueFor(err))
	}

	if len(result.Errors) > 0 {
		msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
		if f.JSON() {
			if err := f.Failure(ErrCodeInvalidGraph, msg, result); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(f.Writer, "✗ Validation failed")
			fmt.Fprintln(f.Writer)
			for _, issue := range result.Errors {
				if issue.UnitID != "" {
					fmt.Fprintf(f.Writer, "  %s [%s]: %s\n", issue.Code, issue.UnitID, issue.Message)
				} else {
					fmt.Fprintf(f.Writer, "  %s: %s\n", issue.Code, issue.Message)
				}
			}
		}
		return reported(NewExitError(ExitFailure, msg))
	}

	g, err := graph.Build(decls)
	if err != nil {
		return f.fail(ExitFailure, ErrCodeInvalidGraph, "invalid graph", err)
	}
	result.Valid = true
	result.Waves = g.Waves()

	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Graph valid: %d unit(s) in %d wave(s)\n", result.Units, len(result.Waves))
	return nil
}

func issueFor(err error) ValidationIssue {
	var ge *graph.Error
	if errors.As(err, &ge) {
		return ValidationIssue{
			Code:    string(ge.Code),
			Message: ge.Message,
			UnitID:  ge.UnitID,
			Cycle:   ge.Cycle,
		}
	}
	return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
}
