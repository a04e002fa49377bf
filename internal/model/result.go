package model

import "time"

// Status is the outcome of one claim as far as the pipeline is concerned
type Status string

const (
	StatusSubmitted         Status = "submitted"           // Backend accepted the claim
	StatusPostProcessFailed Status = "post_process_failed" // Backend accepted the claim, follow-up failed
	StatusFailed            Status = "failed"              // Backend rejected or never answered
)

// Submitted reports whether the backend accepted the claim. Both submitted
// statuses count as success for idempotency.
func (s Status) Submitted() bool {
	return s == StatusSubmitted || s == StatusPostProcessFailed
}

// ErrorKind classifies a failed submission
type ErrorKind string

const (
	ErrorNone         ErrorKind = ""
	ErrorTransient    ErrorKind = "transient"    // Timeouts, 429, 5xx
	ErrorRejected     ErrorKind = "rejected"     // Backend refused the claim content
	ErrorUnauthorized ErrorKind = "unauthorized" // Credentials missing or refused
	ErrorCanceled     ErrorKind = "canceled"     // Run was torn down mid-call
	ErrorUnknown      ErrorKind = "unknown"
)

// SubmissionResult is the outcome of one submission attempt
type SubmissionResult struct {
	Status           Status        `json:"status"`
	ApplicationID    string        `json:"application_id,omitempty"`     // Intake API identifier
	CaseID           string        `json:"case_id,omitempty"`            // Adjudication system case identifier
	ErrorKind        ErrorKind     `json:"error_kind,omitempty"`
	Error            string        `json:"error,omitempty"`
	PostProcessError string        `json:"post_process_error,omitempty"` // Set when the follow-up step failed
	SubmittedAt      time.Time     `json:"submitted_at"`
	Duration         time.Duration `json:"duration_ns,omitempty"`
}

// Succeeded reports whether the submission and any follow-up both succeeded
func (r SubmissionResult) Succeeded() bool {
	return r.Status == StatusSubmitted
}

// Outcome pairs a claim with the result of submitting it
type Outcome struct {
	Record ClaimRecord
	Result SubmissionResult
}

// TrackerEntry is the durable record of a claim's last outcome
type TrackerEntry struct {
	Key              string    `json:"key"`
	Status           Status    `json:"status"`
	ApplicationID    string    `json:"application_id,omitempty"`
	CaseID           string    `json:"case_id,omitempty"`
	ErrorKind        ErrorKind `json:"error_kind,omitempty"`
	Error            string    `json:"error,omitempty"`
	PostProcessError string    `json:"post_process_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EntryFromOutcome converts an outcome into its tracker entry
func EntryFromOutcome(o Outcome) TrackerEntry {
	updated := o.Result.SubmittedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return TrackerEntry{
		Key:              o.Record.Key,
		Status:           o.Result.Status,
		ApplicationID:    o.Result.ApplicationID,
		CaseID:           o.Result.CaseID,
		ErrorKind:        o.Result.ErrorKind,
		Error:            o.Result.Error,
		PostProcessError: o.Result.PostProcessError,
		UpdatedAt:        updated,
	}
}
