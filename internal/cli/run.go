package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/skillwave/internal/engine"
	"github.com/roach88/skillwave/internal/planner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Concurrency int
	Timeout     time.Duration
	Force       []string
	Relaxed     bool

	// Executor overrides the built-in handlers (for testing).
	Executor engine.Executor

	// RunIDs overrides the run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph-file>",
		Short: "Execute a graph, skipping units with cached results",
		Long: `Execute every unit of a graph wave by wave.

Units whose content hash has a usable cache entry are skipped and their
cached output is passed downstream. With --db the cache persists across
runs and every run is recorded in the run log.

Example:
  skillwave run --db ./skillwave.db ./graph.yaml
  skillwave run --force report --concurrency 8 ./graph.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: cache.db from config; empty keeps the cache in memory)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "maximum units executing at once (default: engine.max_concurrency)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-unit timeout, 0 disables (default: engine.unit_timeout)")
	cmd.Flags().StringSliceVar(&opts.Force, "force", nil, "unit id to execute regardless of cache (repeatable)")
	cmd.Flags().BoolVar(&opts.Relaxed, "relaxed", false, "do not force dependents of executed units to re-execute")

	return cmd
}

func runGraph(cmd *cobra.Command, opts *RunOptions, path string) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	cfg := opts.Config

	g, err := loadGraph(f, path)
	if err != nil {
		return err
	}
	f.VerboseLog("loaded %d unit(s) from %s", g.Len(), path)

	sess, err := openSession(opts.RootOptions, opts.Database)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to open cache", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			opts.Logger.Error("error closing database", "error", cerr)
		}
	}()

	concurrency := cfg.Engine.MaxConcurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency = opts.Concurrency
	}
	timeout := cfg.Engine.UnitTimeout
	if cmd.Flags().Changed("timeout") {
		timeout = opts.Timeout
	}
	relaxed := cfg.Engine.RelaxUpstreamRule || opts.Relaxed

	engineOpts := []engine.EngineOption{
		engine.WithMaxConcurrency(concurrency),
		engine.WithUnitTimeout(timeout),
		engine.WithLogger(opts.Logger),
		engine.WithPlannerOptions(
			planner.WithRelaxedUpstreamRule(relaxed),
			planner.WithForced(opts.Force...),
		),
	}
	if sess.store != nil {
		engineOpts = append(engineOpts, engine.WithRecorder(sess.store))
	}
	if opts.RunIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}

	eng, err := engine.New(sess.cache, engineOpts...)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "failed to create engine", err)
	}

	var exec engine.Executor = builtinHandlers()
	if opts.Executor != nil {
		exec = opts.Executor
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := eng.Run(ctx, g, exec)
	if summary == nil {
		return f.fail(ExitCommandError, ErrCodeGeneric, "run failed", runErr)
	}

	switch {
	case runErr != nil:
		return renderRun(f, summary, ErrCodeCancelled, "run cancelled", runErr)
	case !summary.Succeeded():
		return renderRun(f, summary, ErrCodeUnitFailed, fmt.Sprintf("%d unit(s) failed", summary.Failed), nil)
	}
	return renderRun(f, summary, "", "", nil)
}

// renderRun writes the summary and returns the exit error for a failed or
// cancelled run. code is empty for a successful run.
func renderRun(f *OutputFormatter, s *engine.RunSummary, code, message string, cause error) error {
	if f.JSON() {
		if code == "" {
			return f.Success(s)
		}
		if err := f.Failure(code, message, s); err != nil {
			return err
		}
		return reported(WrapExitError(ExitFailure, message, cause))
	}

	writeRunText(f.Writer, s)
	if code == "" {
		return nil
	}
	fmt.Fprintf(f.Writer, "\nError [%s]: %s\n", code, message)
	return reported(WrapExitError(ExitFailure, message, cause))
}

func writeRunText(w io.Writer, s *engine.RunSummary) {
	fmt.Fprintf(w, "Run %s: %d unit(s) in %d wave(s)\n", s.RunID, len(s.Results), len(s.Waves))

	width := 0
	for _, r := range s.Results {
		width = max(width, len(r.UnitID))
	}

	wave := -1
	for _, r := range s.Results {
		if r.Wave != wave {
			wave = r.Wave
			fmt.Fprintf(w, "wave %d\n", wave)
		}
		detail := string(r.Reason)
		if r.Error != "" {
			detail = r.Error
		}
		if r.Shared {
			detail += " (shared)"
		}
		fmt.Fprintf(w, "  %-*s  %-8s  %s\n", width, r.UnitID, r.Outcome, strings.TrimSpace(detail))
	}

	fmt.Fprintf(w, "\nexecuted=%d skipped=%d failed=%d duration=%s\n",
		s.Executed, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
