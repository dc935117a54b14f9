// Package dedup collapses concurrent requests for the same content hash into
// a single execution.
//
// Group is a typed layer over golang.org/x/sync/singleflight. Both the
// synchronous Execute and the channel-based ExecuteAsync go through the same
// DoChan call, so there is exactly one deduplication algorithm.
package dedup

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Producer computes the value for a key. It receives the context of the
// caller that started the in-flight call.
type Producer[T any] func(ctx context.Context) (T, error)

// Result is delivered to every waiter of an in-flight call.
type Result[T any] struct {
	Value T
	Err   error

	// Shared is true when the value was delivered to more than one caller.
	Shared bool
}

// PanicError wraps a value recovered from a panicking producer.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dedup: producer panicked: %v", e.Value)
}

// Group deduplicates concurrent work by key.
//
// Thread-safety model:
//   - For N concurrent callers with the same key, the producer runs once and
//     all N observe the same value or the same error.
//   - Once a call completes the key is released; a later call with the same
//     key runs the producer again. Result reuse across time is the cache's
//     job, not this type's.
//   - A waiter whose context is cancelled detaches with ctx.Err(). The
//     producer keeps running for the remaining waiters.
//
// The zero value is ready to use.
type Group[T any] struct {
	sf singleflight.Group

	mu       sync.Mutex
	attached map[string]int
}

// Execute runs producer for key, or joins an in-flight call for the same
// key, and blocks until the value is available or ctx is done.
func (g *Group[T]) Execute(ctx context.Context, key string, producer Producer[T]) (T, bool, error) {
	r := <-g.ExecuteAsync(ctx, key, producer)
	return r.Value, r.Shared, r.Err
}

// ExecuteAsync is the non-blocking form of Execute. The returned channel
// receives exactly one Result and is then closed.
func (g *Group[T]) ExecuteAsync(ctx context.Context, key string, producer Producer[T]) <-chan Result[T] {
	ch := g.sf.DoChan(key, func() (any, error) {
		return run(ctx, producer)
	})
	// Count the waiter only once singleflight has registered it.
	g.attach(key)

	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		defer g.detach(key)

		select {
		case r := <-ch:
			v, _ := r.Val.(T)
			out <- Result[T]{Value: v, Err: r.Err, Shared: r.Shared}
		case <-ctx.Done():
			var zero T
			out <- Result[T]{Value: zero, Err: ctx.Err()}
		}
	}()
	return out
}

// InFlight returns the number of callers currently waiting on key.
func (g *Group[T]) InFlight(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attached[key]
}

func (g *Group[T]) attach(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attached == nil {
		g.attached = make(map[string]int)
	}
	g.attached[key]++
}

func (g *Group[T]) detach(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attached[key]--
	if g.attached[key] <= 0 {
		delete(g.attached, key)
	}
}

// run invokes the producer, converting a panic into a *PanicError.
// singleflight's DoChan re-panics on a separate goroutine, which would
// crash the process.
func run[T any](ctx context.Context, producer Producer[T]) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return producer(ctx)
}
