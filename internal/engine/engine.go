package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/skillwave/internal/cache"
	"github.com/roach88/skillwave/internal/dedup"
	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/planner"
	"github.com/roach88/skillwave/internal/telemetry"
)

// Recorder persists a finished run. Implemented by store.Store.
type Recorder interface {
	RecordRun(ctx context.Context, summary *RunSummary) error
}

// Engine dispatches a graph wave by wave.
//
// Thread-safety model:
//   - Run may be called from several goroutines at once. Concurrent runs
//     share the cache and the deduper, so identical work across runs is
//     also collapsed.
//   - Within a run, units of one wave execute in a pool bounded by
//     max concurrency; the next wave starts only when the whole wave is
//     terminal.
//
// INVARIANTS:
//   - a unit never starts before all of its dependencies are terminal
//   - a unit with a failed dependency never reaches the executor
//   - timeouts and cancellations are never written to the cache
type Engine struct {
	cache          *cache.Cache
	maxConcurrency int
	unitTimeout    time.Duration
	plannerOpts    []planner.Option
	runIDs         RunIDGenerator
	recorder       Recorder
	logger         *slog.Logger
	now            func() time.Time

	group dedup.Group[ir.IRObject]

	tracer       trace.Tracer
	unitOutcomes metric.Int64Counter
	unitDuration metric.Float64Histogram
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxConcurrency bounds the number of units executing at once.
//
// Default: runtime.NumCPU(). Values below 1 are treated as 1.
func WithMaxConcurrency(n int) EngineOption {
	return func(e *Engine) {
		e.maxConcurrency = max(n, 1)
	}
}

// WithUnitTimeout bounds each execution. Zero disables the timeout.
func WithUnitTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.unitTimeout = d
	}
}

// WithPlannerOptions passes options to the per-run planner.
func WithPlannerOptions(opts ...planner.Option) EngineOption {
	return func(e *Engine) {
		e.plannerOpts = append(e.plannerOpts, opts...)
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithRecorder persists every finished run.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides the wall clock used for timestamps and durations.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over the given cache.
func New(c *cache.Cache, opts ...EngineOption) (*Engine, error) {
	if c == nil {
		return nil, errors.New("engine: cache is required")
	}
	e := &Engine{
		cache:          c,
		maxConcurrency: runtime.NumCPU(),
		runIDs:         UUIDv7Generator{},
		logger:         slog.Default(),
		now:            time.Now,
		tracer:         otel.Tracer("skillwave/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := otel.Meter("skillwave/engine")
	var err error
	if e.unitOutcomes, err = meter.Int64Counter("skillwave.units",
		metric.WithDescription("Units reaching a terminal outcome")); err != nil {
		return nil, err
	}
	if e.unitDuration, err = meter.Float64Histogram("skillwave.unit.duration",
		metric.WithDescription("Unit execution time"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return e, nil
}

// run holds the per-run state. results is only written between waves or
// by the wave's own slot, so it needs no lock.
type run struct {
	id      string
	graph   *graph.Graph
	exec    Executor
	planner *planner.Planner
	clock   *Clock
	results map[string]*UnitResult
}

// Run executes g and returns a summary covering every unit.
//
// Unit failures are reported in the summary, not as an error. The error is
// non-nil only when ctx was cancelled (the summary is still returned, with
// unfinished units marked cancelled).
func (e *Engine) Run(ctx context.Context, g *graph.Graph, exec Executor) (*RunSummary, error) {
	if g == nil {
		return nil, errors.New("engine: graph is required")
	}
	if exec == nil {
		return nil, errors.New("engine: executor is required")
	}

	r := &run{
		id:      e.runIDs.Generate(),
		graph:   g,
		exec:    exec,
		planner: planner.New(e.cache, append([]planner.Option{planner.WithLogger(e.logger)}, e.plannerOpts...)...),
		clock:   NewClock(),
		results: make(map[string]*UnitResult, g.Len()),
	}
	waves := g.Waves()
	summary := &RunSummary{
		RunID:     r.id,
		StartedAt: e.now(),
		Waves:     waves,
	}

	ctx, span := e.tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(telemetry.RunAttributes(r.id, g.Len(), len(waves))...))
	defer span.End()

	e.logger.Info("run starting", "run_id", r.id, "units", g.Len(), "waves", len(waves))

	for i, ids := range waves {
		start := e.now()
		e.runWave(ctx, r, i, ids)
		summary.WaveReports = append(summary.WaveReports, WaveReport{
			Index:    i,
			Units:    ids,
			Duration: e.now().Sub(start),
		})
	}

	for _, ids := range waves {
		for _, id := range ids {
			summary.Results = append(summary.Results, *r.results[id])
		}
	}
	summary.Duration = e.now().Sub(summary.StartedAt)
	summary.Cancelled = ctx.Err() != nil
	summary.tally()

	span.SetAttributes(telemetry.RunOutcomeAttributes(summary.Executed, summary.Skipped, summary.Failed)...)
	e.logger.Info("run finished",
		"run_id", r.id,
		"executed", summary.Executed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)

	if e.recorder != nil {
		if err := e.recorder.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
			e.logger.Warn("failed to record run", "run_id", r.id, "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run %s cancelled: %w", r.id, err)
	}
	return summary, nil
}

// runWave plans every unit of the wave in id order, then executes the
// units that need it in the bounded pool and waits for all of them.
func (e *Engine) runWave(ctx context.Context, r *run, index int, ids []string) {
	ctx, span := e.tracer.Start(ctx, "engine.Wave",
		trace.WithAttributes(telemetry.WaveAttributes(index, len(ids))...))
	defer span.End()

	slots := make([]*UnitResult, len(ids))
	workers := pool.New().WithMaxGoroutines(e.maxConcurrency)

	for i, id := range ids {
		unit, _ := r.graph.Unit(id)

		if ctx.Err() != nil {
			slots[i] = e.fail(r, unit, index, "", &UnitError{Kind: FailureCancelled, UnitID: id, Err: ctx.Err()})
			continue
		}
		if dep, blocked := r.failedDependency(unit); blocked {
			slots[i] = e.fail(r, unit, index, "", &UnitError{Kind: FailureBlocked, UnitID: id, Dependency: dep})
			continue
		}

		deps := make([]planner.DependencyState, 0, len(unit.Requires))
		outputs := make(map[string]ir.IRObject, len(unit.Requires))
		for _, dep := range unit.Requires {
			res := r.results[dep]
			deps = append(deps, planner.DependencyState{
				UnitID:   dep,
				Hash:     res.Hash,
				Executed: res.Outcome == ir.OutcomeExecuted,
			})
			outputs[dep] = res.Output
		}

		decision := r.planner.Plan(ctx, unit, deps)
		if !decision.ShouldExecute() {
			slots[i] = e.replay(r, unit, index, decision)
			continue
		}

		workers.Go(func() {
			slots[i] = e.execute(ctx, r, unit, index, decision, outputs)
		})
	}
	workers.Wait()

	for i, id := range ids {
		r.results[id] = slots[i]
	}
}

// failedDependency returns the first direct dependency, in declaration
// order, that ended in the failed outcome.
func (r *run) failedDependency(unit *graph.Unit) (string, bool) {
	for _, dep := range unit.Requires {
		if res, ok := r.results[dep]; ok && res.Outcome == ir.OutcomeFailed {
			return dep, true
		}
	}
	return "", false
}

// replay synthesizes a result from the cache entry backing a skip.
func (e *Engine) replay(r *run, unit *graph.Unit, wave int, d planner.Decision) *UnitResult {
	if d.Entry.Status == cache.StatusFailed {
		res := e.fail(r, unit, wave, d.Hash, &UnitError{
			Kind:   FailureCached,
			UnitID: unit.ID,
			Err:    errors.New(d.Entry.Error),
		})
		res.Reason = d.Reason
		return res
	}

	res := &UnitResult{
		UnitID:  unit.ID,
		Wave:    wave,
		Hash:    d.Hash,
		Outcome: ir.OutcomeSkipped,
		Reason:  d.Reason,
		Output:  d.Entry.Output,
		Seq:     r.clock.Next(),
	}
	e.observe(res)
	return res
}

// execute runs the unit through the deduper keyed on its content hash.
// Units with an unusable hash run directly and are not cached.
func (e *Engine) execute(
	ctx context.Context,
	r *run,
	unit *graph.Unit,
	wave int,
	d planner.Decision,
	deps map[string]ir.IRObject,
) *UnitResult {
	ctx, span := e.tracer.Start(ctx, "engine.Unit", trace.WithAttributes(
		append(telemetry.UnitAttributes(unit.ID, string(d.Hash)),
			attribute.String(telemetry.AttrDecisionReason, string(d.Reason)))...,
	))
	defer span.End()

	start := e.now()
	produce := func(pctx context.Context) (ir.IRObject, error) {
		return e.produce(pctx, r, unit, d, deps)
	}

	var (
		out    ir.IRObject
		shared bool
		err    error
	)
	if d.Reason == planner.ReasonHashError {
		out, err = produce(ctx)
	} else {
		out, shared, err = e.group.Execute(ctx, string(d.Hash), produce)
	}
	elapsed := e.now().Sub(start)

	if err != nil {
		ue := classify(ctx, unit.ID, err)
		span.RecordError(ue)
		res := e.fail(r, unit, wave, d.Hash, ue)
		res.Reason = d.Reason
		res.Duration = elapsed
		res.Shared = shared
		e.unitDuration.Record(ctx, elapsed.Seconds())
		return res
	}

	res := &UnitResult{
		UnitID:   unit.ID,
		Wave:     wave,
		Hash:     d.Hash,
		Outcome:  ir.OutcomeExecuted,
		Reason:   d.Reason,
		Output:   out,
		Duration: elapsed,
		Shared:   shared,
		Seq:      r.clock.Next(),
	}
	e.unitDuration.Record(ctx, elapsed.Seconds())
	e.observe(res)
	return res
}

// produce is the deduplicated body of an execution: apply the timeout,
// invoke the executor, and cache the result.
func (e *Engine) produce(
	ctx context.Context,
	r *run,
	unit *graph.Unit,
	d planner.Decision,
	deps map[string]ir.IRObject,
) (ir.IRObject, error) {
	uctx := ctx
	if e.unitTimeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, e.unitTimeout)
		defer cancel()
	}

	type outcome struct {
		out ir.IRObject
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("executor panicked: %v", rec)}
			}
		}()
		out, err := r.exec.Execute(uctx, unit, deps)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-uctx.Done():
		o.err = uctx.Err()
	}

	if o.err != nil {
		ue := classify(uctx, unit.ID, o.err)
		if ctx.Err() == nil && errors.Is(uctx.Err(), context.DeadlineExceeded) {
			ue = &UnitError{Kind: FailureTimeout, UnitID: unit.ID, Err: fmt.Errorf("exceeded %s", e.unitTimeout)}
		}
		if cacheable(ue.Kind) && d.Reason != planner.ReasonHashError {
			e.store(ctx, cache.Entry{
				Hash:       d.Hash,
				Status:     cache.StatusFailed,
				Error:      o.err.Error(),
				Provenance: cache.Provenance{UnitID: unit.ID, RunID: r.id},
			})
		}
		return nil, ue
	}

	out := o.out
	if out == nil {
		out = ir.IRObject{}
	}
	if d.Reason != planner.ReasonHashError {
		e.store(ctx, cache.Entry{
			Hash:       d.Hash,
			Status:     cache.StatusSucceeded,
			Output:     out,
			Provenance: cache.Provenance{UnitID: unit.ID, RunID: r.id},
		})
	}
	return out, nil
}

func (e *Engine) store(ctx context.Context, entry cache.Entry) {
	if err := e.cache.Put(ctx, entry); err != nil {
		e.logger.Warn("cache write failed", "unit", entry.Provenance.UnitID, "hash", entry.Hash.Short(), "error", err)
	}
}

// classify maps an error from the executor or the deduper to a UnitError.
// ctx is the context the caller was waiting on.
func classify(ctx context.Context, unitID string, err error) *UnitError {
	var ue *UnitError
	if errors.As(err, &ue) {
		if ue.UnitID == unitID {
			return ue
		}
		// Shared failure produced under another unit's id.
		return &UnitError{Kind: ue.Kind, UnitID: unitID, Dependency: ue.Dependency, Err: ue.Err}
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return &UnitError{Kind: FailureCancelled, UnitID: unitID, Err: err}
	}
	return &UnitError{Kind: FailureExecutor, UnitID: unitID, Err: err}
}

func (e *Engine) fail(r *run, unit *graph.Unit, wave int, hash ir.Hash, ue *UnitError) *UnitResult {
	res := &UnitResult{
		UnitID:  unit.ID,
		Wave:    wave,
		Hash:    hash,
		Outcome: ir.OutcomeFailed,
		Failure: ue.Kind,
		Error:   ue.Error(),
		Err:     ue,
		Seq:     r.clock.Next(),
	}
	e.observe(res)
	return res
}

func (e *Engine) observe(res *UnitResult) {
	attrs := []any{"unit", res.UnitID, "wave", res.Wave, "outcome", res.Outcome}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.Outcome == ir.OutcomeFailed {
		e.logger.Warn("unit failed", append(attrs, "failure", res.Failure, "error", res.Error)...)
	} else {
		e.logger.Debug("unit finished", attrs...)
	}

	e.unitOutcomes.Add(context.Background(), 1, metric.WithAttributes(
		telemetry.OutcomeAttributes(string(res.Outcome), string(res.Failure))...,
	))
}
