package postprocess

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

func outcome(key string, status model.Status, action model.PostProcessAction) model.Outcome {
	return model.Outcome{
		Record: model.ClaimRecord{Key: key, Metadata: model.ClaimMetadata{PostProcess: action}},
		Result: model.SubmissionResult{Status: status, ApplicationID: "app-" + key, CaseID: "NTN-" + key},
	}
}

func process(t *testing.T, p *Processor, outcomes ...model.Outcome) map[string]model.Outcome {
	t.Helper()
	in := make(chan model.Outcome, len(outcomes))
	for _, o := range outcomes {
		in <- o
	}
	close(in)

	out := make(chan model.Outcome)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Process(context.Background(), in, out) }()

	got := make(map[string]model.Outcome)
	for o := range out {
		got[o.Record.Key] = o
	}
	require.NoError(t, <-errCh)
	return got
}

func TestProcess_RoutesByAction(t *testing.T) {
	var handled sync.Map
	strategy := StrategyFunc(func(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
		handled.Store(rec.Key, res.CaseID)
		return nil
	})

	got := process(t, NewProcessor(strategy, 2),
		outcome("A", model.StatusSubmitted, model.ActionApprove),
		outcome("B", model.StatusSubmitted, model.ActionNone),
		outcome("C", model.StatusFailed, model.ActionDeny),
	)

	require.Len(t, got, 3)
	caseID, ok := handled.Load("A")
	assert.True(t, ok)
	assert.Equal(t, "NTN-A", caseID)

	_, ok = handled.Load("B")
	assert.False(t, ok, "claims without an action pass through")
	_, ok = handled.Load("C")
	assert.False(t, ok, "failed submissions are not post-processed")

	assert.Equal(t, model.StatusSubmitted, got["A"].Result.Status)
	assert.Equal(t, model.StatusSubmitted, got["B"].Result.Status)
	assert.Equal(t, model.StatusFailed, got["C"].Result.Status)
}

func TestProcess_FailureDemotes(t *testing.T) {
	strategy := StrategyFunc(func(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
		return errors.New("task not found")
	})

	got := process(t, NewProcessor(strategy, 1), outcome("A", model.StatusSubmitted, model.ActionApprove))

	a := got["A"].Result
	assert.Equal(t, model.StatusPostProcessFailed, a.Status)
	assert.True(t, a.Status.Submitted())
	assert.Equal(t, "app-A", a.ApplicationID)
	assert.Equal(t, "NTN-A", a.CaseID)
	assert.Contains(t, a.PostProcessError, "task not found")
}

func TestProcess_PanicIsFailure(t *testing.T) {
	strategy := StrategyFunc(func(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
		panic("page layout changed")
	})

	got := process(t, NewProcessor(strategy, 1), outcome("A", model.StatusSubmitted, model.ActionDeny))
	assert.Equal(t, model.StatusPostProcessFailed, got["A"].Result.Status)
	assert.Contains(t, got["A"].Result.PostProcessError, "page layout changed")
}

func TestProcess_ConcurrencyBound(t *testing.T) {
	var current, maxSeen int32
	strategy := StrategyFunc(func(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
		n := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	var outcomes []model.Outcome
	for _, k := range []string{"A", "B", "C", "D", "E", "F"} {
		outcomes = append(outcomes, outcome(k, model.StatusSubmitted, model.ActionApprove))
	}
	got := process(t, NewProcessor(strategy, 1), outcomes...)

	assert.Len(t, got, 6)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestProcess_NilStrategyPassesThrough(t *testing.T) {
	got := process(t, NewProcessor(nil, 1), outcome("A", model.StatusSubmitted, model.ActionApprove))
	assert.Equal(t, model.StatusSubmitted, got["A"].Result.Status)
	assert.Empty(t, got["A"].Result.PostProcessError)
}

func TestNewProcessor_DefaultConcurrency(t *testing.T) {
	assert.Equal(t, 1, NewProcessor(nil, 0).concurrency)
	assert.Equal(t, 4, NewProcessor(nil, 4).concurrency)
}

func TestDispatcher(t *testing.T) {
	var called []model.PostProcessAction
	record := func(a model.PostProcessAction) Strategy {
		return StrategyFunc(func(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
			called = append(called, a)
			return nil
		})
	}

	d := NewDispatcher().
		Register(model.ActionApprove, record(model.ActionApprove)).
		Register(model.ActionDeny, record(model.ActionDeny))

	ctx := context.Background()
	require.NoError(t, d.Handle(ctx, outcome("A", model.StatusSubmitted, model.ActionDeny).Record, model.SubmissionResult{}))
	require.NoError(t, d.Handle(ctx, outcome("B", model.StatusSubmitted, model.ActionApprove).Record, model.SubmissionResult{}))
	assert.Equal(t, []model.PostProcessAction{model.ActionDeny, model.ActionApprove}, called)

	err := d.Handle(ctx, outcome("C", model.StatusSubmitted, model.ActionCloseDocuments).Record, model.SubmissionResult{})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestProcess_EmptyDispatcherDemotes(t *testing.T) {
	got := process(t, NewProcessor(NewDispatcher(), 1), outcome("A", model.StatusSubmitted, model.ActionApprove))
	assert.Equal(t, model.StatusPostProcessFailed, got["A"].Result.Status)
	assert.Contains(t, got["A"].Result.PostProcessError, "no post-process handler")
}
