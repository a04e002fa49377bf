// Package pipeline wires the claim submission stages together:
// filter, submit, post-process, track, record, watch.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Badsworth/pfml-scripts-sub007/internal/backend"
	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
	"github.com/Badsworth/pfml-scripts-sub007/internal/postprocess"
	"github.com/Badsworth/pfml-scripts-sub007/internal/report"
	"github.com/Badsworth/pfml-scripts-sub007/internal/source"
	"github.com/Badsworth/pfml-scripts-sub007/internal/tracker"
	"github.com/Badsworth/pfml-scripts-sub007/internal/watchdog"
	"github.com/Badsworth/pfml-scripts-sub007/internal/worker"
)

// ErrInterrupted is returned when the caller's context ends the run early
var ErrInterrupted = eris.New("run interrupted")

// Settings tunes one run
type Settings struct {
	RunID                  string // Generated when empty
	Concurrency            int    // Simultaneous backend calls; 0 uses the default
	MaxConsecutiveFailures int
	SubmitTimeout          time.Duration
	PostProcessConcurrency int
	Credentials            *backend.Credentials
	OutputDir              string // Where the result index is written
}

// Deps are the collaborators a run drives
type Deps struct {
	Source      source.Source
	Tracker     *tracker.Tracker
	Backend     backend.Backend
	PostProcess postprocess.Strategy // nil skips follow-up steps
}

// Pipeline runs claims from a source through submission exactly once per key
type Pipeline struct {
	settings Settings
	deps     Deps
	stats    *model.RunStatistics
}

// New validates settings and creates a pipeline
func New(settings Settings, deps Deps) (*Pipeline, error) {
	if deps.Source == nil || deps.Tracker == nil || deps.Backend == nil {
		return nil, eris.New("pipeline: source, tracker and backend are required")
	}
	if settings.OutputDir == "" {
		return nil, eris.New("pipeline: output dir is required")
	}
	if settings.Concurrency == 0 {
		settings.Concurrency = config.DefaultConcurrency
	}
	if settings.Concurrency < config.MinConcurrency || settings.Concurrency > config.MaxConcurrency {
		return nil, eris.Wrapf(config.ErrInvalidConcurrency, "got %d", settings.Concurrency)
	}
	if settings.MaxConsecutiveFailures == 0 {
		settings.MaxConsecutiveFailures = config.DefaultMaxConsecutiveFailures
	}
	if settings.MaxConsecutiveFailures < 1 {
		return nil, eris.Wrapf(config.ErrInvalidConfig, "max consecutive failures must be at least 1, got %d", settings.MaxConsecutiveFailures)
	}
	if settings.RunID == "" {
		settings.RunID = uuid.NewString()
	}

	return &Pipeline{
		settings: settings,
		deps:     deps,
		stats:    model.NewRunStatistics(),
	}, nil
}

// RunID returns the identifier of this run
func (p *Pipeline) RunID() string {
	return p.settings.RunID
}

// Stats returns the live run counters
func (p *Pipeline) Stats() *model.RunStatistics {
	return p.stats
}

// intakeStop halts the intake side of a run: the filter stops pulling and
// no worker takes another claim. Work already admitted drains normally.
type intakeStop struct {
	once   sync.Once
	mu     sync.Mutex
	reason model.Termination
	cancel context.CancelFunc
	window *worker.Window
}

func (s *intakeStop) stop(reason model.Termination) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		s.cancel()
		s.window.Close()
	})
}

func (s *intakeStop) Reason() model.Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Run drives the source to exhaustion or until the run is stopped. The
// summary is returned in every case where the run started. The error wraps
// watchdog.ErrThresholdReached, tracker.ErrPersistence or ErrInterrupted
// when the run ended early, or the source error if claims could not be read.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("run_id", p.settings.RunID))
	started := time.Now().UTC()

	recorder, err := report.NewRecorder(p.settings.OutputDir, p.settings.RunID, p.stats)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Warn("closing result index", zap.Error(err))
		}
	}()

	window := worker.NewWindow(p.settings.Concurrency)
	submitter, err := worker.NewSubmitter(p.deps.Backend, worker.SubmitterOptions{
		Concurrency: p.settings.Concurrency,
		Timeout:     p.settings.SubmitTimeout,
		Credentials: p.settings.Credentials,
		Window:      window,
		Stats:       p.stats,
	})
	if err != nil {
		return nil, err
	}
	processor := postprocess.NewProcessor(p.deps.PostProcess, p.settings.PostProcessConcurrency)
	wd := watchdog.New(p.settings.MaxConsecutiveFailures, p.stats)

	// In-flight calls and tracking outlive the caller's context so an
	// interrupt never leaves an accepted claim untracked. Only a fatal stage
	// error cancels them.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	intakeCtx, cancelIntake := context.WithCancel(gctx)
	defer cancelIntake()

	halt := &intakeStop{cancel: cancelIntake, window: window}
	wd.OnTrip(func() { halt.stop(model.TerminationThreshold) })
	stopOnInterrupt := context.AfterFunc(ctx, func() {
		log.Warn("interrupt received, draining in-flight claims")
		halt.stop(model.TerminationInterrupted)
	})
	defer stopOnInterrupt()

	records := make(chan model.ClaimRecord)
	submitted := make(chan model.Outcome)
	processed := make(chan model.Outcome)

	var sourceErr, thresholdErr error

	g.Go(func() error {
		err := p.deps.Tracker.Filter(intakeCtx, p.deps.Source, records, p.stats)
		switch {
		case err == nil, intakeCtx.Err() != nil:
			return nil
		case errors.Is(err, tracker.ErrPersistence):
			return err
		default:
			log.Error("claim source failed, stopping intake", zap.Error(err))
			sourceErr = err
			halt.stop(model.TerminationSourceError)
			return nil
		}
	})

	g.Go(func() error {
		return submitter.SubmitAll(gctx, records, submitted)
	})

	g.Go(func() error {
		return processor.Process(gctx, submitted, processed)
	})

	g.Go(func() error {
		for o := range processed {
			err := p.deps.Tracker.Track(gctx, o)
			if err != nil {
				window.Release()
				log.Error("tracker persistence failed, aborting run",
					zap.String("claim_key", o.Record.Key),
					zap.Error(err),
				)
				return err
			}

			if err := recorder.Log(o); err != nil {
				log.Warn("writing result index", zap.String("claim_key", o.Record.Key), zap.Error(err))
			}

			if err := wd.Observe(o); err != nil {
				thresholdErr = err
			}
			window.Release()
		}
		return nil
	})

	runErr := g.Wait()
	stopOnInterrupt()

	summary := &model.RunSummary{
		RunID:      p.settings.RunID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Stats:      p.stats.Snapshot(),
		IndexPath:  recorder.IndexPath(),
	}

	switch {
	case runErr != nil:
		summary.Termination = model.TerminationPersistence
	case thresholdErr != nil:
		summary.Termination = model.TerminationThreshold
		runErr = thresholdErr
	case sourceErr != nil:
		summary.Termination = model.TerminationSourceError
		runErr = eris.Wrap(sourceErr, "read claims")
	case halt.Reason() == model.TerminationInterrupted:
		summary.Termination = model.TerminationInterrupted
		runErr = ErrInterrupted
	default:
		summary.Termination = model.TerminationCompleted
	}
	if runErr != nil {
		summary.Aborted = true
		summary.Reason = runErr.Error()
	}

	if err := recorder.WriteSummary(summary); err != nil {
		log.Warn("writing run summary", zap.Error(err))
	}

	log.Info("run finished",
		zap.String("termination", string(summary.Termination)),
		zap.Int64("attempted", summary.Stats.Attempted),
		zap.Int64("succeeded", summary.Stats.Succeeded),
		zap.Int64("failed", summary.Stats.Failed),
		zap.Int64("skipped", summary.Stats.Skipped),
		zap.Int64("consecutive_failures", summary.Stats.ConsecutiveFailures),
	)

	return summary, runErr
}
