package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/skillwave/internal/planner"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Database string
	Force    []string
	Relaxed  bool
	Hashes   bool
}

// PlannedUnit is the JSON form of one predicted decision.
type PlannedUnit struct {
	UnitID string         `json:"unit_id"`
	Action planner.Action `json:"action"`
	Reason planner.Reason `json:"reason"`
	Hash   string         `json:"hash,omitempty"`
}

// PlannedWave groups predicted decisions by wave.
type PlannedWave struct {
	Index int           `json:"index"`
	Units []PlannedUnit `json:"units"`
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	Waves   []PlannedWave `json:"waves"`
	Execute int           `json:"execute"`
	Skip    int           `json:"skip"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <graph-file>",
		Short: "Show what a run would execute and skip",
		Long: `Predict the decision for every unit of a graph without executing
anything. The cache is read but never written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: cache.db from config)")
	cmd.Flags().StringSliceVar(&opts.Force, "force", nil, "unit id to treat as forced (repeatable)")
	cmd.Flags().BoolVar(&opts.Relaxed, "relaxed", false, "do not force dependents of executed units")
	cmd.Flags().BoolVar(&opts.Hashes, "hashes", false, "include short content hashes in text output")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *PlanOptions, path string) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	g, err := loadGraph(f, path)
	if err != nil {
		return err
	}

	sess, err := openSession(opts.RootOptions, opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open cache", err)
	}
	defer sess.Close()

	p := planner.New(sess.cache,
		planner.WithRelaxedUpstreamRule(opts.Config.Engine.RelaxUpstreamRule || opts.Relaxed),
		planner.WithForced(opts.Force...),
		planner.WithLogger(opts.Logger),
	)

	result := PlanResult{}
	for _, wp := range p.Preview(commandContext(cmd), g) {
		pw := PlannedWave{Index: wp.Index}
		for _, d := range wp.Decisions {
			pw.Units = append(pw.Units, PlannedUnit{
				UnitID: d.UnitID,
				Action: d.Action,
				Reason: d.Reason,
				Hash:   string(d.Hash),
			})
			if d.ShouldExecute() {
				result.Execute++
			} else {
				result.Skip++
			}
		}
		result.Waves = append(result.Waves, pw)
	}

	if f.JSON() {
		return f.Success(result)
	}
	writePlanText(f.Writer, result, opts.Hashes)
	return nil
}

func writePlanText(w io.Writer, p PlanResult, hashes bool) {
	width := 0
	for _, wave := range p.Waves {
		for _, u := range wave.Units {
			width = max(width, len(u.UnitID))
		}
	}

	for _, wave := range p.Waves {
		fmt.Fprintf(w, "wave %d\n", wave.Index)
		for _, u := range wave.Units {
			if hashes {
				short := u.Hash
				if len(short) > 12 {
					short = short[:12]
				}
				fmt.Fprintf(w, "  %-*s  %-13s  %-17s  %s\n", width, u.UnitID, u.Action, u.Reason, short)
				continue
			}
			fmt.Fprintf(w, "  %-*s  %-13s  %s\n", width, u.UnitID, u.Action, u.Reason)
		}
	}
	fmt.Fprintf(w, "\n%d to execute, %d to skip\n", p.Execute, p.Skip)
}
