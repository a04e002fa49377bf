// Package backendtest provides an in-memory Backend for tests.
package backendtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Badsworth/pfml-scripts-sub007/internal/backend"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// Fake records every call and fails keys selected by FailFunc
type Fake struct {
	Delay    time.Duration
	FailFunc func(key string) bool

	mu          sync.Mutex
	calls       map[string]int
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	total       atomic.Int64
}

// New creates a fake that succeeds for every claim
func New() *Fake {
	return &Fake{calls: make(map[string]int)}
}

// FailAll returns a fake that rejects every claim
func FailAll() *Fake {
	f := New()
	f.FailFunc = func(string) bool { return true }
	return f
}

// FailKeys returns a fake that rejects only the given keys
func FailKeys(keys ...string) *Fake {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	f := New()
	f.FailFunc = func(key string) bool { return set[key] }
	return f
}

// Name returns the backend name
func (f *Fake) Name() string {
	return "fake"
}

// Submit records the call and succeeds or fails per FailFunc
func (f *Fake) Submit(ctx context.Context, claim model.ClaimRecord, creds *backend.Credentials) (backend.Submission, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.total.Add(1)
	f.mu.Lock()
	f.calls[claim.Key]++
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return backend.Submission{}, ctx.Err()
		}
	}

	if f.FailFunc != nil && f.FailFunc(claim.Key) {
		return backend.Submission{}, &backend.Error{Kind: model.ErrorTransient, StatusCode: 503, Message: "service unavailable"}
	}
	return backend.Submission{ApplicationID: "app-" + claim.Key, CaseID: "NTN-" + claim.Key + "-ABS-01"}, nil
}

// Calls returns how many times key was submitted
func (f *Fake) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// Total returns the number of Submit calls
func (f *Fake) Total() int {
	return int(f.total.Load())
}

// MaxInFlight returns the highest number of concurrent Submit calls seen
func (f *Fake) MaxInFlight() int {
	return int(f.maxInFlight.Load())
}
