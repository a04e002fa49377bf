package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Badsworth/pfml-scripts-sub007/internal/backend"
	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// SubmitterOptions configures a Submitter
type SubmitterOptions struct {
	Concurrency int                  // Simultaneous backend calls; 0 uses the default
	Timeout     time.Duration        // Per-call limit; 0 disables it
	Credentials *backend.Credentials // Passed to every call, may be nil
	Window      *Window              // Optional end-to-end in-flight bound
	Stats       *model.RunStatistics
}

// Submitter sends claims to the backend on a bounded pool
type Submitter struct {
	backend backend.Backend
	opts    SubmitterOptions
}

// NewSubmitter creates a submitter. Concurrency outside [1,10] is rejected.
func NewSubmitter(b backend.Backend, opts SubmitterOptions) (*Submitter, error) {
	if opts.Concurrency == 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.Concurrency < config.MinConcurrency || opts.Concurrency > config.MaxConcurrency {
		return nil, eris.Wrapf(config.ErrInvalidConcurrency, "got %d", opts.Concurrency)
	}
	if opts.Stats == nil {
		opts.Stats = model.NewRunStatistics()
	}
	return &Submitter{backend: b, opts: opts}, nil
}

// Concurrency returns the number of simultaneous backend calls
func (s *Submitter) Concurrency() int {
	return s.opts.Concurrency
}

// SubmitAll submits every claim from in and emits outcomes to out in
// completion order. Backend failures become failed outcomes. out is closed
// when SubmitAll returns.
func (s *Submitter) SubmitAll(ctx context.Context, in <-chan model.ClaimRecord, out chan<- model.Outcome) error {
	defer close(out)

	pool := NewPool(s.opts.Concurrency, s.submit)
	if s.opts.Window != nil {
		pool.WithWindow(s.opts.Window)
	}
	return pool.Run(ctx, in, out)
}

func (s *Submitter) submit(ctx context.Context, rec model.ClaimRecord) model.Outcome {
	s.opts.Stats.AddAttempted()

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	sub, err := s.backend.Submit(callCtx, rec, s.opts.Credentials)
	result := model.SubmissionResult{
		SubmittedAt: time.Now().UTC(),
		Duration:    time.Since(start),
	}

	if err != nil {
		result.Status = model.StatusFailed
		result.ErrorKind = backend.Classify(err)
		result.Error = err.Error()
		zap.L().Warn("claim submission failed",
			zap.String("claim_key", rec.Key),
			zap.String("error_kind", string(result.ErrorKind)),
			zap.Error(err),
		)
		return model.Outcome{Record: rec, Result: result}
	}

	result.Status = model.StatusSubmitted
	result.ApplicationID = sub.ApplicationID
	result.CaseID = sub.CaseID
	zap.L().Info("claim submitted",
		zap.String("claim_key", rec.Key),
		zap.String("application_id", sub.ApplicationID),
		zap.String("case_id", sub.CaseID),
		zap.Duration("duration", result.Duration),
	)
	return model.Outcome{Record: rec, Result: result}
}
