// Package worker runs claim submissions on a fixed-size pool of goroutines.
package worker

import (
	"context"
	"sync"
)

// Pool applies fn to items from an input channel on a fixed number of
// workers. Results are emitted in completion order.
type Pool[In, Out any] struct {
	workers int
	fn      func(ctx context.Context, item In) Out
	window  *Window
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool[In, Out any](workers int, fn func(ctx context.Context, item In) Out) *Pool[In, Out] {
	if workers <= 0 {
		workers = 1
	}
	return &Pool[In, Out]{workers: workers, fn: fn}
}

// WithWindow makes every worker hold a window slot before taking an item.
// The slot travels with the result; whoever consumes it must call Release.
func (p *Pool[In, Out]) WithWindow(w *Window) *Pool[In, Out] {
	p.window = w
	return p
}

// Workers returns the number of workers
func (p *Pool[In, Out]) Workers() int {
	return p.workers
}

// Run processes items until in is closed, the window closes, or ctx ends.
// It does not close out. Each worker holds at most one item, so no more than
// Workers() items are taken from in beyond what has been emitted.
func (p *Pool[In, Out]) Run(ctx context.Context, in <-chan In, out chan<- Out) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, in, out)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// worker is the worker goroutine that processes items
func (p *Pool[In, Out]) worker(ctx context.Context, in <-chan In, out chan<- Out) {
	for {
		if p.window != nil {
			if err := p.window.Acquire(ctx); err != nil {
				return
			}
		}

		var (
			item In
			ok   bool
		)
		select {
		case item, ok = <-in:
		case <-ctx.Done():
		}
		if !ok {
			p.release()
			return
		}

		result := p.fn(ctx, item)

		select {
		case out <- result:
		case <-ctx.Done():
			p.release()
			return
		}
	}
}

func (p *Pool[In, Out]) release() {
	if p.window != nil {
		p.window.Release()
	}
}
