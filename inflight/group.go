// Package inflight deduplicates concurrent work by key.
//
// Group wraps singleflight with typed results, context-aware waiting and a
// view of which keys are currently running. A key is tracked from the moment
// its work starts until it finishes, whatever way it finishes.
package inflight

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrPanic wraps a panic recovered from shared work.
var ErrPanic = errors.New("inflight: work panicked")

// Group runs at most one call of fn per key at a time. Callers that arrive
// while a call is running share its result.
type Group[T any] struct {
	sf singleflight.Group

	mu      sync.Mutex
	running map[string]struct{}
}

// Do runs fn for key unless a call for key is already running, in which case
// it waits for that call. shared reports whether the result was delivered to
// more than one caller.
//
// fn receives a context detached from ctx: a caller whose ctx ends stops
// waiting and gets ctx.Err(), while the shared call keeps running for the
// others.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (v T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (any, error) {
		g.track(key)
		defer g.untrack(key)
		return run(detached, fn)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		out, _ := res.Val.(T) //nolint:errcheck // type assertion always succeeds when err is nil
		return out, res.Shared, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// Len returns the number of keys with running work.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

func (g *Group[T]) track(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	g.running[key] = struct{}{}
}

func (g *Group[T]) untrack(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}
