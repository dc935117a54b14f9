package engine

import (
	"context"
	"fmt"

	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
)

// Executor performs the actual work of a unit.
//
// deps maps each direct dependency id to its output. Implementations must
// honor ctx cancellation; the engine stops waiting when the unit times out
// but cannot preempt a goroutine that ignores ctx.
type Executor interface {
	Execute(ctx context.Context, unit *graph.Unit, deps map[string]ir.IRObject) (ir.IRObject, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, unit *graph.Unit, deps map[string]ir.IRObject) (ir.IRObject, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, unit *graph.Unit, deps map[string]ir.IRObject) (ir.IRObject, error) {
	return f(ctx, unit, deps)
}

// Handlers routes each unit to the executor registered under its Executor
// name. The handler registered under "" serves units that name none.
type Handlers map[string]Executor

// Execute dispatches to the named handler. An unknown name is an executor
// error for that unit only.
func (h Handlers) Execute(ctx context.Context, unit *graph.Unit, deps map[string]ir.IRObject) (ir.IRObject, error) {
	ex, ok := h[unit.Executor]
	if !ok {
		return nil, fmt.Errorf("no handler registered for executor %q", unit.Executor)
	}
	return ex.Execute(ctx, unit, deps)
}
