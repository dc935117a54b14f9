package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
	Hash     string
}

// RunDetail is the output of history --run.
type RunDetail struct {
	Run   store.RunRecord    `json:"run"`
	Units []store.UnitRecord `json:"units"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List recorded runs, newest first. With --run, show the unit results of
one run. With --hash, show every recorded result for one content hash.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: cache.db from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list, 0 for all")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the unit results of this run")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "show results recorded for this content hash")
	cmd.MarkFlagsMutuallyExclusive("run", "hash")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case opts.RunID != "":
		run, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return f.fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
		}
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "failed to read run", err)
		}
		units, err := st.RunResults(ctx, run.ID)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "failed to read run results", err)
		}
		detail := RunDetail{Run: run, Units: units}
		if f.JSON() {
			return f.Success(detail)
		}
		writeRunDetailText(f.Writer, detail)

	case opts.Hash != "":
		units, err := st.ResultsByHash(ctx, ir.Hash(opts.Hash))
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "failed to read results", err)
		}
		if f.JSON() {
			return f.Success(units)
		}
		if len(units) == 0 {
			fmt.Fprintln(f.Writer, "No results recorded for this hash")
			return nil
		}
		for _, u := range units {
			fmt.Fprintf(f.Writer, "%s  %s  %s  %s\n", u.RunID, u.UnitID, u.Outcome, u.Reason)
		}

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "failed to list runs", err)
		}
		if f.JSON() {
			return f.Success(runs)
		}
		writeRunListText(f.Writer, runs)
	}
	return nil
}

func writeRunListText(w io.Writer, runs []store.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		status := "ok"
		switch {
		case r.Cancelled:
			status = "cancelled"
		case r.Failed > 0:
			status = "failed"
		}
		fmt.Fprintf(w, "%s  %s  %-9s  units=%d executed=%d skipped=%d failed=%d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), status, r.Units, r.Executed, r.Skipped, r.Failed)
	}
}

func writeRunDetailText(w io.Writer, d RunDetail) {
	r := d.Run
	fmt.Fprintf(w, "Run %s (%s, engine %s)\n", r.ID, r.StartedAt.Format(time.RFC3339), r.EngineVersion)
	fmt.Fprintf(w, "executed=%d skipped=%d failed=%d duration=%s\n\n",
		r.Executed, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))

	width := 0
	for _, u := range d.Units {
		width = max(width, len(u.UnitID))
	}
	for _, u := range d.Units {
		detail := string(u.Reason)
		if u.Error != "" {
			detail = u.Error
		}
		fmt.Fprintf(w, "  wave %d  %-*s  %-8s  %s\n", u.Wave, width, u.UnitID, u.Outcome, detail)
	}
}
