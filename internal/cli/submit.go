package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Badsworth/pfml-scripts-sub007/internal/backend"
	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/pipeline"
	"github.com/Badsworth/pfml-scripts-sub007/internal/postprocess"
	"github.com/Badsworth/pfml-scripts-sub007/internal/report"
	"github.com/Badsworth/pfml-scripts-sub007/internal/source"
	"github.com/Badsworth/pfml-scripts-sub007/internal/tracker"
)

type submitOptions struct {
	runID           string
	skipPostProcess bool
}

func newSubmitCmd(a *app) *cobra.Command {
	opts := &submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit <data-dir>",
		Short: "Submit every unsubmitted claim in a data directory",
		Long: `Submit reads claims.ndjson from the data directory and sends each claim
that the tracker has not yet recorded as submitted.

Claims are submitted concurrently (1-10 at a time, default 3). After too many
consecutive failures the run stops taking new claims, lets in-flight claims
finish, and exits with status 2. Press Ctrl+C once to drain and stop, twice
to exit immediately.

Examples:
  pfml-submit submit ./data/BHAP1
  pfml-submit submit ./data/BHAP1 --concurrency 5 --max-failures 20
  pfml-submit submit ./data/BHAP1 --backend dryrun`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSubmit(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.IntP("concurrency", "c", config.DefaultConcurrency, "claims submitted at once (1-10)")
	flags.IntP("max-failures", "m", config.DefaultMaxConsecutiveFailures, "consecutive failures before the run aborts")
	flags.Float64("rate", 0, "backend requests per second (0 = unlimited)")
	flags.Duration("timeout", 90*time.Second, "timeout for a single submission")
	flags.String("backend", "http", "submission backend (http, dryrun)")
	flags.String("base-url", "", "intake API base URL")
	flags.String("tracker-path", "", "tracker file or database (default: inside the data directory)")
	flags.String("output-dir", "", "result index directory (default: <data-dir>/submission-logs)")
	flags.String("postprocess-command", "", "command run for claims requesting a follow-up action")
	flags.Int("postprocess-concurrency", config.DefaultPostProcessConcurrency, "follow-up actions run at once (1-10)")
	flags.BoolVar(&opts.skipPostProcess, "skip-postprocess", false, "submit only, ignore follow-up actions")
	flags.StringVar(&opts.runID, "run-id", "", "identifier for this run (default: random UUID)")

	for key, flag := range map[string]string{
		"submit.concurrency":              "concurrency",
		"submit.max_consecutive_failures": "max-failures",
		"submit.rate_per_second":          "rate",
		"submit.timeout":                  "timeout",
		"backend.driver":                  "backend",
		"backend.base_url":                "base-url",
		"tracker.path":                    "tracker-path",
		"output.dir":                      "output-dir",
		"postprocess.command":             "postprocess-command",
		"postprocess.concurrency":         "postprocess-concurrency",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func (a *app) runSubmit(ctx context.Context, dataDir string, opts *submitOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	info, err := os.Stat(dataDir)
	if err != nil {
		return eris.Wrapf(config.ErrInvalidConfig, "data directory: %v", err)
	}
	if !info.IsDir() {
		return eris.Wrapf(config.ErrInvalidConfig, "%s is not a directory", dataDir)
	}

	cfg := *a.cfg
	cfg.ResolvePaths(dataDir)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// First signal drains the run; restoring default handling lets a second
	// one kill the process.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, stop)

	runID := opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	release, err := tracker.AcquireLock(dataDir, runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			zap.L().Warn("releasing run lock", zap.Error(err))
		}
	}()

	src, err := source.OpenDir(dataDir)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	store, err := tracker.Open(ctx, cfg.Tracker)
	if err != nil {
		return err
	}
	tr := tracker.New(store, cfg.Tracker.CacheTTL)
	defer func() {
		if err := tr.Close(); err != nil {
			zap.L().Warn("closing tracker", zap.Error(err))
		}
	}()

	be, err := backend.New(cfg.Backend, backend.NewLimiter(cfg.Submit.RatePerSecond, cfg.Submit.Burst))
	if err != nil {
		return err
	}

	strategy, err := postProcessStrategy(cfg.PostProcess, opts.skipPostProcess)
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Settings{
		RunID:                  runID,
		Concurrency:            cfg.Submit.Concurrency,
		MaxConsecutiveFailures: cfg.Submit.MaxConsecutiveFailures,
		SubmitTimeout:          cfg.Submit.Timeout,
		PostProcessConcurrency: cfg.PostProcess.Concurrency,
		Credentials:            backend.CredentialsFromConfig(cfg.Backend),
		OutputDir:              cfg.Output.Dir,
	}, pipeline.Deps{
		Source:      src,
		Tracker:     tr,
		Backend:     be,
		PostProcess: strategy,
	})
	if err != nil {
		return err
	}

	report.PrintHeader(a.stderr, runID, dataDir, cfg.Submit.Concurrency, be.Name())

	summary, err := p.Run(ctx)
	if summary != nil {
		report.PrintSummary(a.stderr, summary)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%s\n", summary.IndexPath)
	return nil
}

// postProcessStrategy returns nil when follow-up actions are turned off.
// Enabled without a command, claims that request an action are recorded as
// post_process_failed.
func postProcessStrategy(cfg config.PostProcessConfig, skip bool) (postprocess.Strategy, error) {
	if skip || !cfg.Enabled {
		return nil, nil
	}
	if cfg.Command == "" {
		zap.L().Warn("post-processing enabled without a command; follow-up actions will fail",
			zap.String("hint", "set postprocess.command or pass --skip-postprocess"))
		return postprocess.NewDispatcher(), nil
	}
	return postprocess.NewCommandDispatcher(cfg.Command, cfg.Timeout)
}
