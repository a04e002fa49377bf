package worker

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrWindowClosed is returned by Acquire once the window stops admitting work
var ErrWindowClosed = eris.New("window closed")

// Window bounds how many items are in flight between the point a worker
// takes one and the point a downstream consumer releases it. Closing the
// window stops new admissions while held slots drain normally.
type Window struct {
	slots     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWindow creates a window admitting at most size items at once
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		slots: make(chan struct{}, size),
		done:  make(chan struct{}),
	}
}

// Acquire blocks until a slot is free, the window closes, or ctx ends
func (w *Window) Acquire(ctx context.Context) error {
	select {
	case <-w.done:
		return ErrWindowClosed
	default:
	}

	select {
	case w.slots <- struct{}{}:
	case <-w.done:
		return ErrWindowClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Close may have won the race with the send above
	select {
	case <-w.done:
		<-w.slots
		return ErrWindowClosed
	default:
		return nil
	}
}

// Release frees a slot taken by Acquire
func (w *Window) Release() {
	<-w.slots
}

// Close stops admitting new items. It is safe to call more than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// InFlight returns the number of slots currently held
func (w *Window) InFlight() int {
	return len(w.slots)
}

// Size returns the window capacity
func (w *Window) Size() int {
	return cap(w.slots)
}
