package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/ir"
)

// ErrInjected is returned for units configured to fail.
var ErrInjected = errors.New("injected failure")

// RecordingExecutor is a configurable executor that records every call.
//
// By default a unit's output is {"unit": id, "deps": n} where n is the
// number of dependency outputs it received.
//
// Thread-safety: safe for concurrent use.
type RecordingExecutor struct {
	mu      sync.Mutex
	calls   map[string]int
	order   []string
	fail    map[string]bool
	hang    map[string]bool
	gate    chan struct{}
	outputs map[string]ir.IRObject

	running     atomic.Int32
	maxRunning  atomic.Int32
	totalCalls  atomic.Int32
	lastDepSeen map[string]map[string]ir.IRObject
}

// NewRecordingExecutor creates an executor with no injected behavior.
func NewRecordingExecutor() *RecordingExecutor {
	return &RecordingExecutor{
		calls:       make(map[string]int),
		fail:        make(map[string]bool),
		hang:        make(map[string]bool),
		outputs:     make(map[string]ir.IRObject),
		lastDepSeen: make(map[string]map[string]ir.IRObject),
	}
}

// FailOn makes the listed units return ErrInjected.
func (x *RecordingExecutor) FailOn(ids ...string) *RecordingExecutor {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		x.fail[id] = true
	}
	return x
}

// HangOn makes the listed units block until their context is done.
func (x *RecordingExecutor) HangOn(ids ...string) *RecordingExecutor {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		x.hang[id] = true
	}
	return x
}

// Gate makes every call block until the returned function is called.
func (x *RecordingExecutor) Gate() (release func()) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.gate = make(chan struct{})
	var once sync.Once
	gate := x.gate
	return func() { once.Do(func() { close(gate) }) }
}

// Returns sets the output for a unit.
func (x *RecordingExecutor) Returns(id string, out ir.IRObject) *RecordingExecutor {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.outputs[id] = out
	return x
}

// Execute implements engine.Executor.
func (x *RecordingExecutor) Execute(ctx context.Context, unit *graph.Unit, deps map[string]ir.IRObject) (ir.IRObject, error) {
	x.mu.Lock()
	x.calls[unit.ID]++
	x.order = append(x.order, unit.ID)
	x.lastDepSeen[unit.ID] = deps
	fail, hang, gate := x.fail[unit.ID], x.hang[unit.ID], x.gate
	out, hasOut := x.outputs[unit.ID]
	x.mu.Unlock()

	x.totalCalls.Add(1)
	n := x.running.Add(1)
	defer x.running.Add(-1)
	for {
		m := x.maxRunning.Load()
		if n <= m || x.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, ErrInjected
	}
	if hasOut {
		return out, nil
	}
	return ir.IRObject{
		"unit": ir.IRString(unit.ID),
		"deps": ir.IRInt(len(deps)),
	}, nil
}

// Calls returns how many times a unit was executed.
func (x *RecordingExecutor) Calls(id string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls[id]
}

// TotalCalls returns the number of executions across all units.
func (x *RecordingExecutor) TotalCalls() int {
	return int(x.totalCalls.Load())
}

// Running returns the number of executions currently in progress.
func (x *RecordingExecutor) Running() int {
	return int(x.running.Load())
}

// MaxRunning returns the peak number of simultaneous executions.
func (x *RecordingExecutor) MaxRunning() int {
	return int(x.maxRunning.Load())
}

// Order returns unit ids in the order their executions started.
func (x *RecordingExecutor) Order() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.order...)
}

// DepsSeen returns the dependency outputs the unit last received.
func (x *RecordingExecutor) DepsSeen(id string) map[string]ir.IRObject {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastDepSeen[id]
}
