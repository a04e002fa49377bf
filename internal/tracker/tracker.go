// Package tracker records which claims have been submitted so that reruns
// never submit the same claim twice.
package tracker

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Badsworth/pfml-scripts-sub007/internal/cache"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
	"github.com/Badsworth/pfml-scripts-sub007/internal/source"
)

// ErrPersistence marks a failure to read or write tracker state. The run
// cannot continue safely once it occurs.
var ErrPersistence = eris.New("tracker persistence failure")

// Tracker filters already-submitted claims and records outcomes
type Tracker struct {
	store Store
	index *cache.LayeredCache
	mu    sync.Mutex
}

// New wraps store with an in-memory read cache
func New(store Store, cacheTTL time.Duration) *Tracker {
	return &Tracker{
		store: store,
		index: cache.NewLayeredCache(store, cacheTTL),
	}
}

// IsSubmitted reports whether key has a recorded successful submission
func (t *Tracker) IsSubmitted(ctx context.Context, key string) (bool, error) {
	entry, found, err := t.index.Get(ctx, key)
	if err != nil {
		return false, eris.Wrapf(ErrPersistence, "lookup %s: %v", key, err)
	}
	return found && entry.Status.Submitted(), nil
}

// Filter pulls claims from src and forwards the ones not yet submitted to
// out, closing out when it returns. Repeated keys within one input are
// forwarded once. Filter returns ctx.Err() if ctx ends before src is
// exhausted.
func (t *Tracker) Filter(ctx context.Context, src source.Source, out chan<- model.ClaimRecord, stats *model.RunStatistics) error {
	defer close(out)
	if stats == nil {
		stats = &model.RunStatistics{}
	}

	seen := make(map[string]struct{})
	for {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if _, dup := seen[rec.Key]; dup {
			stats.AddSkipped()
			zap.L().Warn("duplicate claim key in input, skipping", zap.String("claim_key", rec.Key))
			continue
		}
		seen[rec.Key] = struct{}{}

		done, err := t.IsSubmitted(ctx, rec.Key)
		if err != nil {
			return err
		}
		if done {
			stats.AddSkipped()
			zap.L().Debug("claim already submitted, skipping", zap.String("claim_key", rec.Key))
			continue
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Track durably records an outcome. A recorded success is never downgraded
// by a later failure for the same key.
func (t *Tracker) Track(ctx context.Context, o model.Outcome) error {
	entry := model.EntryFromOutcome(o)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !entry.Status.Submitted() {
		prev, found, err := t.index.Get(ctx, entry.Key)
		if err != nil {
			return eris.Wrapf(ErrPersistence, "lookup %s: %v", entry.Key, err)
		}
		if found && prev.Status.Submitted() {
			zap.L().Warn("ignoring failure for already submitted claim",
				zap.String("claim_key", entry.Key),
				zap.String("application_id", prev.ApplicationID),
			)
			return nil
		}
	}

	if err := t.index.Put(ctx, entry); err != nil {
		return eris.Wrapf(ErrPersistence, "record %s: %v", entry.Key, err)
	}
	return nil
}

// Entries returns every tracked entry ordered by claim key
func (t *Tracker) Entries(ctx context.Context) ([]model.TrackerEntry, error) {
	entries, err := t.store.All(ctx)
	if err != nil {
		return nil, eris.Wrapf(ErrPersistence, "list: %v", err)
	}
	return entries, nil
}

// Close releases the underlying store
func (t *Tracker) Close() error {
	return t.store.Close()
}
