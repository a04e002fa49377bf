package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// LockFile is the name of the run lock inside a data directory
const LockFile = ".pfml-submit.lock"

type runLock struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	RunID     string    `json:"run_id"`
}

var ErrLockHeld = eris.New("run lock is held")

// AcquireLock takes the run lock for dataDir so two runs never share a
// tracker. A lock left behind by a dead process is reclaimed.
func AcquireLock(dataDir, runID string) (func() error, error) {
	path := filepath.Join(dataDir, LockFile)
	return acquire(path, runID, true)
}

func acquire(path, runID string, retry bool) (func() error, error) {
	data, err := json.MarshalIndent(runLock{PID: os.Getpid(), StartedAt: time.Now().UTC(), RunID: runID}, "", "    ")
	if err != nil {
		return nil, err
	}

	// O_EXCL fails if another run created the file first
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, eris.Wrapf(err, "tracker: create lock %s", path)
		}
		if b, readErr := os.ReadFile(path); readErr == nil {
			var existing runLock
			if json.Unmarshal(b, &existing) == nil && existing.PID > 0 {
				if processAlive(existing.PID) {
					return nil, eris.Wrapf(ErrLockHeld, "pid %d (run_id=%s)", existing.PID, existing.RunID)
				}
				if retry && os.Remove(path) == nil {
					return acquire(path, runID, false)
				}
			}
		}
		return nil, eris.Wrapf(ErrLockHeld, "lock file %s exists", path)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	return func() error { return os.Remove(path) }, nil
}

func processAlive(pid int) bool {
	// Signal 0 checks existence without delivering anything
	return syscall.Kill(pid, 0) == nil
}
