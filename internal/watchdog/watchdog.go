// Package watchdog stops a run after sustained consecutive failures.
package watchdog

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// State is the breaker state. A run never closes an open breaker again.
type State int

const (
	StateClosed State = iota // Outcomes flow normally
	StateOpen                // Threshold reached, intake must stop
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrThresholdReached is returned by Observe when the breaker trips
var ErrThresholdReached = eris.New("aborted: failure threshold reached")

// Watchdog counts consecutive failed outcomes. Any outcome that is not a
// clean success counts as a failure, including a failed follow-up step.
type Watchdog struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	state       State
	stats       *model.RunStatistics
	onTrip      func()
}

// New creates a watchdog tripping after threshold consecutive failures.
// stats may be nil.
func New(threshold int, stats *model.RunStatistics) *Watchdog {
	if threshold < 1 {
		threshold = 1
	}
	return &Watchdog{threshold: threshold, stats: stats}
}

// OnTrip registers fn to run once, synchronously, when the breaker opens
func (w *Watchdog) OnTrip(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTrip = fn
}

// Observe records one outcome. It returns ErrThresholdReached exactly once,
// on the observation that opens the breaker.
func (w *Watchdog) Observe(o model.Outcome) error {
	w.mu.Lock()

	if o.Result.Succeeded() {
		w.consecutive = 0
	} else {
		w.consecutive++
	}
	if w.stats != nil {
		w.stats.SetConsecutiveFailures(int64(w.consecutive))
	}

	if w.state == StateOpen || w.consecutive < w.threshold {
		w.mu.Unlock()
		return nil
	}

	w.state = StateOpen
	consecutive := w.consecutive
	onTrip := w.onTrip
	w.mu.Unlock()

	zap.L().Error("failure threshold reached, stopping intake",
		zap.Int("consecutive_failures", consecutive),
		zap.Int("threshold", w.threshold),
		zap.String("claim_key", o.Record.Key),
	)
	if onTrip != nil {
		onTrip()
	}
	return eris.Wrapf(ErrThresholdReached, "%d consecutive failures", consecutive)
}

// State returns the breaker state
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Tripped reports whether the threshold was reached
func (w *Watchdog) Tripped() bool {
	return w.State() == StateOpen
}

// Consecutive returns the current consecutive failure count
func (w *Watchdog) Consecutive() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consecutive
}

// Threshold returns the configured limit
func (w *Watchdog) Threshold() int {
	return w.threshold
}
