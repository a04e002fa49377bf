package postprocess

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// maxOutputTail bounds how much command output is kept in an error
const maxOutputTail = 512

// CommandHandler runs an external program for each claim. The claim payload
// is written to stdin and identifiers are passed in the environment:
//
//	PFML_CLAIM_KEY, PFML_APPLICATION_ID, PFML_CASE_ID, PFML_ACTION
//
// A non-zero exit fails the step.
type CommandHandler struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewCommandHandler parses command into a program and its arguments
func NewCommandHandler(command string, timeout time.Duration) (*CommandHandler, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, eris.New("postprocess: command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, eris.Wrapf(err, "postprocess: %s not found", fields[0])
	}
	return &CommandHandler{name: fields[0], args: fields[1:], timeout: timeout}, nil
}

// Handle runs the command for one claim
func (h *CommandHandler) Handle(ctx context.Context, rec model.ClaimRecord, res model.SubmissionResult) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, h.name, h.args...)
	cmd.Stdin = bytes.NewReader(rec.Payload)
	cmd.Env = append(os.Environ(),
		"PFML_CLAIM_KEY="+rec.Key,
		"PFML_APPLICATION_ID="+res.ApplicationID,
		"PFML_CASE_ID="+res.CaseID,
		"PFML_ACTION="+string(rec.Metadata.PostProcess),
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return eris.Wrapf(ctx.Err(), "%s %s", h.name, rec.Metadata.PostProcess)
		}
		return eris.Wrapf(err, "%s %s: %s", h.name, rec.Metadata.PostProcess, tail(output.String()))
	}
	return nil
}

// NewCommandDispatcher routes every known action to the same command
func NewCommandDispatcher(command string, timeout time.Duration) (*Dispatcher, error) {
	h, err := NewCommandHandler(command, timeout)
	if err != nil {
		return nil, err
	}
	return NewDispatcher().
		Register(model.ActionApprove, h).
		Register(model.ActionDeny, h).
		Register(model.ActionCloseDocuments, h), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutputTail {
		s = "..." + s[len(s)-maxOutputTail:]
	}
	return s
}
