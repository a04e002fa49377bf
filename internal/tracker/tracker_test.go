package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
	"github.com/Badsworth/pfml-scripts-sub007/internal/source"
)

// flakyStore wraps a FileStore and fails on demand
type flakyStore struct {
	*FileStore
	mu      sync.Mutex
	failGet bool
	failPut bool
	puts    int
}

func (s *flakyStore) Get(ctx context.Context, key string) (model.TrackerEntry, bool, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return model.TrackerEntry{}, false, errors.New("disk on fire")
	}
	return s.FileStore.Get(ctx, key)
}

func (s *flakyStore) Put(ctx context.Context, e model.TrackerEntry) error {
	s.mu.Lock()
	s.puts++
	fail := s.failPut
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.FileStore.Put(ctx, e)
}

func newTestTracker(t *testing.T) (*Tracker, *flakyStore) {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "submitted.json"))
	require.NoError(t, err)
	st := &flakyStore{FileStore: fs}
	return New(st, time.Minute), st
}

func outcome(key string, status model.Status) model.Outcome {
	return model.Outcome{
		Record: model.ClaimRecord{Key: key},
		Result: model.SubmissionResult{Status: status, ApplicationID: "app-" + key, SubmittedAt: time.Now().UTC()},
	}
}

func collect(t *testing.T, tr *Tracker, src source.Source, stats *model.RunStatistics) ([]string, error) {
	t.Helper()
	out := make(chan model.ClaimRecord)
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Filter(context.Background(), src, out, stats) }()

	var keys []string
	for rec := range out {
		keys = append(keys, rec.Key)
	}
	return keys, <-errCh
}

func TestFilter_SkipsSubmitted(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, outcome("A", model.StatusSubmitted)))
	require.NoError(t, tr.Track(ctx, outcome("B", model.StatusPostProcessFailed)))
	require.NoError(t, tr.Track(ctx, outcome("C", model.StatusFailed)))

	stats := model.NewRunStatistics()
	keys, err := collect(t, tr, source.FromSlice(
		model.ClaimRecord{Key: "A"},
		model.ClaimRecord{Key: "B"},
		model.ClaimRecord{Key: "C"},
		model.ClaimRecord{Key: "D"},
	), stats)

	require.NoError(t, err)
	assert.Equal(t, []string{"C", "D"}, keys)
	assert.Equal(t, int64(2), stats.Snapshot().Skipped)
}

func TestFilter_DropsDuplicateKeys(t *testing.T) {
	tr, _ := newTestTracker(t)
	stats := model.NewRunStatistics()

	keys, err := collect(t, tr, source.FromSlice(
		model.ClaimRecord{Key: "A"},
		model.ClaimRecord{Key: "A"},
		model.ClaimRecord{Key: "B"},
	), stats)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, keys)
	assert.Equal(t, int64(1), stats.Snapshot().Skipped)
}

func TestFilter_LookupFailureIsPersistenceError(t *testing.T) {
	tr, st := newTestTracker(t)
	st.failGet = true

	keys, err := collect(t, tr, source.FromSlice(model.ClaimRecord{Key: "A"}), nil)
	assert.Empty(t, keys)
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestFilter_StopsOnCancel(t *testing.T) {
	tr, _ := newTestTracker(t)
	src := source.FromSlice(model.ClaimRecord{Key: "A"}, model.ClaimRecord{Key: "B"}, model.ClaimRecord{Key: "C"})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.ClaimRecord)
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Filter(ctx, src, out, nil) }()

	first := <-out
	assert.Equal(t, "A", first.Key)
	cancel()

	for range out {
	}
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.LessOrEqual(t, src.Pulled(), 2)
}

func TestTrack_PersistenceFailure(t *testing.T) {
	tr, st := newTestTracker(t)
	st.failPut = true

	err := tr.Track(context.Background(), outcome("A", model.StatusSubmitted))
	assert.ErrorIs(t, err, ErrPersistence)

	// The failed write must not leave a cached success behind
	st.failPut = false
	done, err := tr.IsSubmitted(context.Background(), "A")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestTrack_NeverDowngradesSuccess(t *testing.T) {
	tr, st := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, outcome("A", model.StatusSubmitted)))
	require.NoError(t, tr.Track(ctx, outcome("A", model.StatusFailed)))

	done, err := tr.IsSubmitted(ctx, "A")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, st.puts)
}

func TestTrack_FailureThenSuccess(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, outcome("A", model.StatusFailed)))
	done, err := tr.IsSubmitted(ctx, "A")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, tr.Track(ctx, outcome("A", model.StatusSubmitted)))
	done, err = tr.IsSubmitted(ctx, "A")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestTrack_ConcurrentWriters(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, tr.Track(ctx, outcome(key, model.StatusSubmitted)))
		}(i)
	}
	wg.Wait()

	entries, err := tr.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
