// Package planner decides, per unit, whether to execute or skip.
//
// A decision is a pure function of the unit's content hash, the cache, and
// whether any direct dependency executed earlier in the same run. The
// planner never mutates the cache.
package planner

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/skillwave/internal/cache"
	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
	"github.com/roach88/skillwave/internal/telemetry"
)

// Action is what the dispatcher should do with a unit.
type Action string

const (
	ActionSkip         Action = "skip"
	ActionExecute      Action = "execute"
	ActionForceExecute Action = "force-execute"
)

// Reason explains a decision. Reasons are stable strings used in run
// summaries, logs, and the plan command output.
type Reason string

const (
	ReasonCacheHit         Reason = "cache-hit"
	ReasonCachedFailure    Reason = "cached-failure"
	ReasonRetryFailed      Reason = "retry-failed"
	ReasonCacheMiss        Reason = "cache-miss"
	ReasonUpstreamExecuted Reason = "upstream-executed"
	ReasonForced           Reason = "forced"
	ReasonHashError        Reason = "hash-error"
)

// DependencyState is the resolved state of one direct dependency.
type DependencyState struct {
	UnitID string
	Hash   ir.Hash

	// Executed is true if the dependency ran (rather than skipped) in the
	// current run.
	Executed bool
}

// Decision is the planner's verdict for one unit.
type Decision struct {
	UnitID string
	Action Action
	Reason Reason

	// Hash is the unit's content hash. Empty when Reason is hash-error.
	Hash ir.Hash

	// Entry is the cache entry backing a skip decision.
	Entry *cache.Entry

	// Err is the hashing error when Reason is hash-error.
	Err error
}

// ShouldExecute reports whether the unit must run.
func (d Decision) ShouldExecute() bool {
	return d.Action != ActionSkip
}

// Lookup is the read side of the execution cache. Peek must not change
// the cache's contents or recency.
type Lookup interface {
	Get(ctx context.Context, hash ir.Hash) (cache.Entry, bool)
	Peek(ctx context.Context, hash ir.Hash) (cache.Entry, bool)
	Usable(e cache.Entry) bool
}

type getFunc func(ctx context.Context, hash ir.Hash) (cache.Entry, bool)

// Planner produces skip/execute decisions.
type Planner struct {
	cache   Lookup
	relaxed bool
	forced  map[string]bool
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Planner.
type Option func(*Planner)

// WithRelaxedUpstreamRule disables forced re-execution when a dependency
// executed in this run. The cache alone decides, keyed by the content hash
// (which already covers dependency hashes).
func WithRelaxedUpstreamRule(relaxed bool) Option {
	return func(p *Planner) {
		p.relaxed = relaxed
	}
}

// WithForced always executes the named units regardless of cache state.
func WithForced(ids ...string) Option {
	return func(p *Planner) {
		for _, id := range ids {
			p.forced[id] = true
		}
	}
}

// WithLogger sets the planner logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = l
	}
}

// New creates a Planner over the given cache.
func New(c Lookup, opts ...Option) *Planner {
	p := &Planner{
		cache:  c,
		forced: make(map[string]bool),
		logger: slog.Default(),
		tracer: otel.Tracer("skillwave/planner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan decides what to do with unit given the states of its direct
// dependencies.
//
// Decision order:
//  1. content hash = InputHash(spec hash, dependency hashes)
//  2. a dependency executed in this run → force-execute (upstream-executed)
//  3. unit forced by configuration → force-execute (forced)
//  4. usable cache entry → skip; failed entry → execute (retry-failed);
//     no entry → execute (cache-miss)
//
// A hashing failure yields execute with reason hash-error. The dispatcher
// must not cache the result of such an execution.
func (p *Planner) Plan(ctx context.Context, unit *graph.Unit, deps []DependencyState) Decision {
	return p.traced(ctx, "planner.Plan", unit, deps, p.cache.Get)
}

func (p *Planner) traced(ctx context.Context, name string, unit *graph.Unit, deps []DependencyState, get getFunc) Decision {
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithAttributes(telemetry.UnitAttributes(unit.ID, "")...))
	defer span.End()

	d := p.plan(ctx, unit, deps, get)

	span.SetAttributes(telemetry.DecisionAttributes(string(d.Action), string(d.Reason))...)
	p.logger.Debug("planned unit",
		"unit", unit.ID,
		"action", d.Action,
		"reason", d.Reason,
		"hash", d.Hash.Short(),
	)
	return d
}

func (p *Planner) plan(ctx context.Context, unit *graph.Unit, deps []DependencyState, get getFunc) Decision {
	d := Decision{UnitID: unit.ID}

	depHashes := make([]ir.DependencyHash, len(deps))
	for i, dep := range deps {
		depHashes[i] = ir.DependencyHash{UnitID: dep.UnitID, Hash: dep.Hash}
	}
	hash, err := ir.InputHash(unit.SpecHash, depHashes)
	if err != nil {
		p.logger.Warn("content hash failed, executing without cache",
			"unit", unit.ID, "error", err)
		d.Action, d.Reason, d.Err = ActionExecute, ReasonHashError, err
		return d
	}
	d.Hash = hash

	if !p.relaxed {
		for _, dep := range deps {
			if dep.Executed {
				d.Action, d.Reason = ActionForceExecute, ReasonUpstreamExecuted
				return d
			}
		}
	}

	if p.forced[unit.ID] {
		d.Action, d.Reason = ActionForceExecute, ReasonForced
		return d
	}

	entry, ok := get(ctx, hash)
	switch {
	case !ok:
		d.Action, d.Reason = ActionExecute, ReasonCacheMiss
	case p.cache.Usable(entry) && entry.Status == cache.StatusSucceeded:
		d.Action, d.Reason, d.Entry = ActionSkip, ReasonCacheHit, &entry
	case p.cache.Usable(entry):
		d.Action, d.Reason, d.Entry = ActionSkip, ReasonCachedFailure, &entry
	default:
		d.Action, d.Reason = ActionExecute, ReasonRetryFailed
	}
	return d
}
