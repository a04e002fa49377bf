package cli

import (
	"errors"

	"github.com/Badsworth/pfml-scripts-sub007/internal/pipeline"
	"github.com/Badsworth/pfml-scripts-sub007/internal/tracker"
	"github.com/Badsworth/pfml-scripts-sub007/internal/watchdog"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitError       = 1
	ExitThreshold   = 2
	ExitPersistence = 3
	ExitInterrupted = 130
)

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, tracker.ErrPersistence):
		return ExitPersistence
	case errors.Is(err, watchdog.ErrThresholdReached):
		return ExitThreshold
	case errors.Is(err, pipeline.ErrInterrupted):
		return ExitInterrupted
	default:
		return ExitError
	}
}
