package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
	"github.com/Badsworth/pfml-scripts-sub007/internal/tracker"
)

type statusReport struct {
	DataDir string               `json:"data_dir" yaml:"data_dir"`
	Tracker string               `json:"tracker" yaml:"tracker"`
	Counts  tracker.StatusCounts `json:"counts" yaml:"counts"`
	Pending []pendingClaim       `json:"pending,omitempty" yaml:"pending,omitempty"`
}

type pendingClaim struct {
	Key    string       `json:"key" yaml:"key"`
	Status model.Status `json:"status" yaml:"status"`
	Error  string       `json:"error,omitempty" yaml:"error,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		format      string
		listPending bool
	)

	cmd := &cobra.Command{
		Use:   "status <data-dir>",
		Short: "Show what the tracker has recorded for a data directory",
		Long: `Status summarizes the tracker state of a data directory: how many claims
were submitted, how many need their follow-up action repeated, and how many
failed and will be retried on the next run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.collectStatus(cmd.Context(), args[0], listPending)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), rep, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, yaml)")
	cmd.Flags().BoolVar(&listPending, "pending", false, "list claims that are not cleanly submitted")
	return cmd
}

func (a *app) collectStatus(ctx context.Context, dataDir string, listPending bool) (*statusReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(dataDir); err != nil {
		return nil, eris.Wrapf(config.ErrInvalidConfig, "data directory: %v", err)
	}

	cfg := *a.cfg
	cfg.ResolvePaths(dataDir)

	store, err := tracker.Open(ctx, cfg.Tracker)
	if err != nil {
		return nil, err
	}
	defer store.Close() //nolint:errcheck

	entries, err := store.All(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "read tracker")
	}

	rep := &statusReport{
		DataDir: dataDir,
		Tracker: cfg.Tracker.Driver,
		Counts:  tracker.Summarize(entries),
	}
	if listPending {
		for _, e := range entries {
			if e.Status == model.StatusSubmitted {
				continue
			}
			msg := e.Error
			if e.Status == model.StatusPostProcessFailed {
				msg = e.PostProcessError
			}
			rep.Pending = append(rep.Pending, pendingClaim{Key: e.Key, Status: e.Status, Error: msg})
		}
	}
	return rep, nil
}

func writeStatus(w io.Writer, rep *statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		return yaml.NewEncoder(w).Encode(rep)
	case "text", "":
	default:
		return eris.Wrapf(config.ErrInvalidConfig, "unknown format %q (supported: text, json, yaml)", format)
	}

	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "  Tracker Status: %s\n", rep.DataDir)
	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "  Submitted:           %d\n", rep.Counts.Submitted)
	fmt.Fprintf(w, "  Post-process failed: %d\n", rep.Counts.PostProcessFailed)
	fmt.Fprintf(w, "  Failed:              %d\n", rep.Counts.Failed)
	fmt.Fprintf(w, "  Total tracked:       %d\n", rep.Counts.Total())
	for _, p := range rep.Pending {
		fmt.Fprintf(w, "  • %s [%s] %s\n", p.Key, p.Status, p.Error)
	}
	fmt.Fprintln(w, banner)
	return nil
}
