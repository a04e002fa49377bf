// Package backend talks to the claims intake API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Badsworth/pfml-scripts-sub007/internal/config"
	"github.com/Badsworth/pfml-scripts-sub007/internal/model"
)

// Backend submits one claim per call
type Backend interface {
	// Name returns the backend name
	Name() string

	// Submit sends a claim and returns the identifiers the backend assigned.
	// Failures are returned as *Error where the backend gave a reason.
	Submit(ctx context.Context, claim model.ClaimRecord, creds *Credentials) (Submission, error)
}

// Credentials authenticate a submission. Token takes precedence over
// username and password.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// CredentialsFromConfig returns nil when no credentials are configured
func CredentialsFromConfig(cfg config.BackendConfig) *Credentials {
	if cfg.Token == "" && cfg.Username == "" {
		return nil
	}
	return &Credentials{Token: cfg.Token, Username: cfg.Username, Password: cfg.Password}
}

// Submission holds the identifiers for an accepted claim
type Submission struct {
	ApplicationID string
	CaseID        string
}

// Error is a structured backend failure
type Error struct {
	Kind       model.ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
}

// KindForStatus maps an HTTP status code to an error kind
func KindForStatus(code int) model.ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.ErrorUnauthorized
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return model.ErrorTransient
	case code >= 400:
		return model.ErrorRejected
	default:
		return model.ErrorUnknown
	}
}

// Classify determines the error kind for any error returned by Submit
func Classify(err error) model.ErrorKind {
	if err == nil {
		return model.ErrorNone
	}

	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.Canceled) {
		return model.ErrorCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrorTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.ErrorTransient
	}
	return model.ErrorUnknown
}
