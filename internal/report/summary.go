package report

import (
	"fmt"
	"io"
	"time"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

const banner = "═══════════════════════════════════════════════════════════"

// PrintHeader prints the run banner before submission starts
func PrintHeader(w io.Writer, runID, dataDir string, concurrency int, backendName string) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", banner)
	fmt.Fprintf(w, "  PFML Claim Submission\n")
	fmt.Fprintf(w, "%s\n", banner)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Run ID:       %s\n", runID)
	fmt.Fprintf(w, "  Data dir:     %s\n", dataDir)
	fmt.Fprintf(w, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(w, "  Backend:      %s\n", backendName)
	fmt.Fprintf(w, "\n")
}

// PrintSummary prints run counters and, on abort, what stopped the run
func PrintSummary(w io.Writer, s *model.RunSummary) {
	title := "Submission Complete"
	if s.Aborted {
		title = "Submission Aborted"
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "%s\n", banner)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "%s\n", banner)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Attempted:  %d\n", s.Stats.Attempted)
	fmt.Fprintf(w, "  Succeeded:  %d\n", s.Stats.Succeeded)
	if s.Stats.PostProcessFailed > 0 {
		fmt.Fprintf(w, "    post-process failed: %d\n", s.Stats.PostProcessFailed)
	}
	fmt.Fprintf(w, "  Failed:     %d\n", s.Stats.Failed)
	fmt.Fprintf(w, "  Skipped:    %d (already submitted)\n", s.Stats.Skipped)
	fmt.Fprintf(w, "  Duration:   %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if s.IndexPath != "" {
		fmt.Fprintf(w, "  Index:      %s\n", s.IndexPath)
	}
	fmt.Fprintf(w, "\n")

	if s.Aborted {
		fmt.Fprintf(w, "  ✗ Aborted (%s): %s\n", s.Termination, s.Reason)
		fmt.Fprintf(w, "\n")
	}
}
