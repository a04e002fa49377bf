package postprocess

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
	"github.com/Badsworth/pfml-scripts-sub007/internal/worker"
)

// Processor applies a Strategy to submitted claims that request a follow-up
type Processor struct {
	strategy    Strategy
	concurrency int
}

// NewProcessor creates a processor running at most concurrency follow-ups
// at once. A nil strategy passes every outcome through untouched.
func NewProcessor(strategy Strategy, concurrency int) *Processor {
	if concurrency < config.MinConcurrency {
		concurrency = config.DefaultPostProcessConcurrency
	}
	return &Processor{strategy: strategy, concurrency: concurrency}
}

// Process forwards outcomes from in to out. Submitted claims with an action
// are handed to the strategy; a failure demotes the outcome to
// post_process_failed and keeps the identifiers. out is closed when Process
// returns.
func (p *Processor) Process(ctx context.Context, in <-chan model.Outcome, out chan<- model.Outcome) error {
	defer close(out)

	work := make(chan model.Outcome)
	var g errgroup.Group

	g.Go(func() error {
		defer close(work)
		for o := range in {
			target := out
			if p.needsFollowUp(o) {
				target = work
			}
			select {
			case target <- o:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		return worker.NewPool(p.concurrency, p.handle).Run(ctx, work, out)
	})

	return g.Wait()
}

func (p *Processor) needsFollowUp(o model.Outcome) bool {
	return p.strategy != nil && o.Result.Status == model.StatusSubmitted && o.Record.WantsPostProcess()
}

func (p *Processor) handle(ctx context.Context, o model.Outcome) model.Outcome {
	action := string(o.Record.Metadata.PostProcess)

	if err := p.run(ctx, o); err != nil {
		o.Result.Status = model.StatusPostProcessFailed
		o.Result.PostProcessError = err.Error()
		zap.L().Warn("post-process failed",
			zap.String("claim_key", o.Record.Key),
			zap.String("case_id", o.Result.CaseID),
			zap.String("action", action),
			zap.Error(err),
		)
		return o
	}

	zap.L().Info("post-process complete",
		zap.String("claim_key", o.Record.Key),
		zap.String("case_id", o.Result.CaseID),
		zap.String("action", action),
	)
	return o
}

func (p *Processor) run(ctx context.Context, o model.Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("post-process panic: %v", r)
		}
	}()
	return p.strategy.Handle(ctx, o.Record, o.Result)
}
