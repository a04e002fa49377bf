package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// ClaimRecord is one synthetic claim produced by a claim source.
// Records are never mutated once produced.
type ClaimRecord struct {
	Key      string          `json:"key"`                // Stable unique key (e.g., derived from the employee tax identifier)
	Payload  json.RawMessage `json:"payload"`            // Body sent to the intake API as-is
	Metadata ClaimMetadata   `json:"metadata,omitempty"` // Instructions for follow-up automation
}

// ClaimMetadata carries optional instructions attached to a claim by the generator
type ClaimMetadata struct {
	PostProcess PostProcessAction `json:"postProcess,omitempty"` // Follow-up requested after submission
	Scenario    string            `json:"scenario,omitempty"`    // Generator scenario name, informational
}

// PostProcessAction tags the adjudication step a claim asks for after submission
type PostProcessAction string

const (
	ActionNone           PostProcessAction = ""
	ActionApprove        PostProcessAction = "approve"         // Approve the absence case
	ActionDeny           PostProcessAction = "deny"            // Deny the absence case
	ActionCloseDocuments PostProcessAction = "close_documents" // Close open document review tasks
)

// Valid reports whether the action is one the pipeline knows how to dispatch
func (a PostProcessAction) Valid() bool {
	switch a {
	case ActionNone, ActionApprove, ActionDeny, ActionCloseDocuments:
		return true
	default:
		return false
	}
}

// WantsPostProcess reports whether the claim requests follow-up automation
func (c ClaimRecord) WantsPostProcess() bool {
	return c.Metadata.PostProcess != ActionNone
}

// keyFields are payload fields that identify a claimant, in preference order.
var keyFields = []string{"tax_identifier", "employee_ssn", "tax_identifier_last4"}

// DeriveKey builds a stable key from claim content. It prefers the claimant's
// tax identifier and falls back to a content hash of the payload.
func DeriveKey(payload json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err == nil {
		for _, name := range keyFields {
			if v, ok := fields[name].(string); ok && strings.TrimSpace(v) != "" {
				return strings.ReplaceAll(strings.TrimSpace(v), "-", "")
			}
		}
	}

	hash := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(hash[:])
}
