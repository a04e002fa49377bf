package model

import (
	"sync/atomic"
	"time"
)

// RunStatistics holds counters for a single pipeline run. Stages running on
// different goroutines update it concurrently.
type RunStatistics struct {
	attempted           atomic.Int64
	succeeded           atomic.Int64
	failed              atomic.Int64
	postProcessFailed   atomic.Int64
	skipped             atomic.Int64
	consecutiveFailures atomic.Int64
	maxConsecutive      atomic.Int64
}

// NewRunStatistics creates zeroed run counters
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{}
}

func (s *RunStatistics) AddAttempted()         { s.attempted.Add(1) }
func (s *RunStatistics) AddSucceeded()         { s.succeeded.Add(1) }
func (s *RunStatistics) AddFailed()            { s.failed.Add(1) }
func (s *RunStatistics) AddPostProcessFailed() { s.postProcessFailed.Add(1) }
func (s *RunStatistics) AddSkipped()           { s.skipped.Add(1) }

// SetConsecutiveFailures records the watchdog's current streak and keeps the
// longest streak seen this run.
func (s *RunStatistics) SetConsecutiveFailures(n int64) {
	s.consecutiveFailures.Store(n)
	for {
		cur := s.maxConsecutive.Load()
		if n <= cur || s.maxConsecutive.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Attempted returns the number of backend calls dispatched so far
func (s *RunStatistics) Attempted() int64 { return s.attempted.Load() }

// Snapshot returns a point-in-time copy of the counters
func (s *RunStatistics) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Attempted:           s.attempted.Load(),
		Succeeded:           s.succeeded.Load(),
		Failed:              s.failed.Load(),
		PostProcessFailed:   s.postProcessFailed.Load(),
		Skipped:             s.skipped.Load(),
		ConsecutiveFailures: s.consecutiveFailures.Load(),
		MaxConsecutive:      s.maxConsecutive.Load(),
	}
}

// StatsSnapshot is the serializable form of RunStatistics
type StatsSnapshot struct {
	Attempted           int64 `json:"attempted" yaml:"attempted"`
	Succeeded           int64 `json:"succeeded" yaml:"succeeded"`
	Failed              int64 `json:"failed" yaml:"failed"`
	PostProcessFailed   int64 `json:"post_process_failed" yaml:"post_process_failed"`
	Skipped             int64 `json:"skipped" yaml:"skipped"` // Already submitted by a previous run
	ConsecutiveFailures int64 `json:"consecutive_failures" yaml:"consecutive_failures"`
	MaxConsecutive      int64 `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// Termination describes why a run stopped
type Termination string

const (
	TerminationCompleted   Termination = "completed"
	TerminationThreshold   Termination = "failure_threshold"   // Watchdog tripped
	TerminationInterrupted Termination = "interrupted"         // Caller canceled the run
	TerminationSourceError Termination = "source_error"        // Claim source could not be read
	TerminationPersistence Termination = "persistence_failure" // Tracker state could not be written
)

// RunSummary is reported at the end of every run
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Stats       StatsSnapshot `json:"stats"`
	Termination Termination   `json:"termination"`
	Aborted     bool          `json:"aborted"`
	Reason      string        `json:"reason,omitempty"`
	IndexPath   string        `json:"index_path,omitempty"`
}
