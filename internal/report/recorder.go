// Package report writes the per-run result index and summary.
package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// IndexEntry is one line of the result index
type IndexEntry struct {
	RunID            string                  `json:"run_id"`
	Key              string                  `json:"key"`
	Status           model.Status            `json:"status"`
	ApplicationID    string                  `json:"application_id,omitempty"`
	CaseID           string                  `json:"case_id,omitempty"`
	Action           model.PostProcessAction `json:"action,omitempty"`
	ErrorKind        model.ErrorKind         `json:"error_kind,omitempty"`
	Error            string                  `json:"error,omitempty"`
	PostProcessError string                  `json:"post_process_error,omitempty"`
	SubmittedAt      time.Time               `json:"submitted_at"`
	DurationMS       int64                   `json:"duration_ms"`
}

// Recorder appends one index line per outcome and keeps the run counters
type Recorder struct {
	mu        sync.Mutex
	runID     string
	dir       string
	indexPath string
	file      *os.File
	w         *bufio.Writer
	enc       *json.Encoder
	stats     *model.RunStatistics
	entries   int
}

// NewRecorder creates <dir>/<runID>.ndjson
func NewRecorder(dir, runID string, stats *model.RunStatistics) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	indexPath := filepath.Join(dir, runID+".ndjson")
	file, err := os.OpenFile(indexPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, eris.Wrapf(err, "report: create %s", indexPath)
	}

	if stats == nil {
		stats = model.NewRunStatistics()
	}
	w := bufio.NewWriter(file)
	return &Recorder{
		runID:     runID,
		dir:       dir,
		indexPath: indexPath,
		file:      file,
		w:         w,
		enc:       json.NewEncoder(w),
		stats:     stats,
	}, nil
}

// Log counts the outcome and appends it to the index. Counters are updated
// even if the write fails.
func (r *Recorder) Log(o model.Outcome) error {
	switch o.Result.Status {
	case model.StatusSubmitted:
		r.stats.AddSucceeded()
	case model.StatusPostProcessFailed:
		r.stats.AddSucceeded()
		r.stats.AddPostProcessFailed()
	default:
		r.stats.AddFailed()
	}

	entry := IndexEntry{
		RunID:            r.runID,
		Key:              o.Record.Key,
		Status:           o.Result.Status,
		ApplicationID:    o.Result.ApplicationID,
		CaseID:           o.Result.CaseID,
		Action:           o.Record.Metadata.PostProcess,
		ErrorKind:        o.Result.ErrorKind,
		Error:            o.Result.Error,
		PostProcessError: o.Result.PostProcessError,
		SubmittedAt:      o.Result.SubmittedAt,
		DurationMS:       o.Result.Duration.Milliseconds(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return eris.New("report: recorder is closed")
	}
	if err := r.enc.Encode(entry); err != nil {
		return eris.Wrapf(err, "report: write %s", o.Record.Key)
	}
	if err := r.w.Flush(); err != nil {
		return eris.Wrapf(err, "report: flush %s", r.indexPath)
	}
	r.entries++
	return nil
}

// Entries returns how many lines were written
func (r *Recorder) Entries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries
}

// IndexPath returns the result index location
func (r *Recorder) IndexPath() string {
	return r.indexPath
}

// SummaryPath returns where WriteSummary puts the run summary
func (r *Recorder) SummaryPath() string {
	return filepath.Join(r.dir, r.runID+".summary.json")
}

// WriteSummary writes the run summary next to the index
func (r *Recorder) WriteSummary(summary *model.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: encode summary")
	}
	if err := os.WriteFile(r.SummaryPath(), data, 0644); err != nil {
		return eris.Wrapf(err, "report: write %s", r.SummaryPath())
	}
	return nil
}

// Close flushes and closes the index
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	flushErr := r.w.Flush()
	closeErr := r.file.Close()
	r.file = nil
	if flushErr != nil {
		return eris.Wrapf(flushErr, "report: flush %s", r.indexPath)
	}
	return eris.Wrapf(closeErr, "report: close %s", r.indexPath)
}

// ReadIndex loads every entry from an index file
func ReadIndex(path string) ([]IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: open %s", path)
	}
	defer f.Close()

	var entries []IndexEntry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e IndexEntry
		if err := dec.Decode(&e); err != nil {
			return nil, eris.Wrapf(err, "report: decode %s", path)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
