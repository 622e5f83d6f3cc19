package model

import (
	"time"

	"github.com/google/uuid"
)

// Action is the fixed audit event vocabulary.
type Action string

const (
	ActionQueryReceived         Action = "QUERY_RECEIVED"
	ActionSearchQuery           Action = "SEARCH_QUERY"
	ActionSearchExecuted        Action = "SEARCH_EXECUTED"
	ActionAuthzAllow            Action = "AUTHZ_ALLOW"
	ActionAuthzDeny             Action = "AUTHZ_DENY"
	ActionAuthorityEvaluated    Action = "AUTHORITY_EVALUATED"
	ActionResultsFiltered       Action = "RESULTS_FILTERED"
	ActionSearchResultsReturned Action = "SEARCH_RESULTS_RETURNED"
	ActionResponseReturned      Action = "RESPONSE_RETURNED"
)

// AuditEvent is one append-only row in the audit log. Details always
// contains query_id, timestamp and a context snapshot; ContentHash is the
// tamper-evident digest computed at insert time.
type AuditEvent struct {
	ID           uuid.UUID      `json:"id"`
	Actor        string         `json:"actor"`
	Action       Action         `json:"action"`
	DocumentID   *string        `json:"document_id,omitempty"`
	VersionID    *string        `json:"version_id,omitempty"`
	ModelVersion *string        `json:"model_version,omitempty"`
	IndexVersion *string        `json:"index_version,omitempty"`
	Details      map[string]any `json:"details"`
	ContentHash  string         `json:"content_hash,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// QueryID extracts the query correlation id from the event details.
func (e AuditEvent) QueryID() string {
	if v, ok := e.Details["query_id"].(string); ok {
		return v
	}
	return ""
}
