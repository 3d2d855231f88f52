// Copyright 2025 Athenaeum contributors
// SPDX-License-Identifier: Apache-2.0

package shelfsync

// REST/JSON models for the batch sync and preference endpoints.

import "encoding/json"

// Per-item result statuses.
const (
	StApplied  = "applied"
	StRejected = "rejected"
)

// Rejection reasons.
const (
	ReasonValidationFailed = "validation_failed"
	ReasonParentMissing    = "parent_missing"
	ReasonDuplicate        = "duplicate"
	ReasonInternalError    = "internal_error"
)

// PushChange is a single pending local mutation in a /sync/push request.
type PushChange struct {
	Entity   string          `json:"entity"`              // table name, e.g. "books"
	Op       string          `json:"op"`                  // create, update, delete
	LocalID  string          `json:"local_id"`            // client-assigned identifier
	ServerID *int64          `json:"server_id,omitempty"` // null until first sync
	Payload  json.RawMessage `json:"payload,omitempty"`   // business fields (null for delete)
}

// PushRequest is the umbrella batch-sync request; one request carries one
// partition (creates, updates or deletes) of one entity type.
type PushRequest struct {
	Changes []PushChange `json:"changes"`
}

// PushResult is the per-item outcome; the response carries one result per
// change, in request order.
type PushResult struct {
	LocalID  string `json:"local_id"`
	Status   string `json:"status"` // applied, rejected
	ServerID *int64 `json:"server_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PushResponse is the server response to a /sync/push request.
type PushResponse struct {
	Results []PushResult `json:"results"`
}

// PreferenceInput is one preference in a create request. ClientRef is the
// client-local reference the server echoes back so the response maps to the
// local record.
type PreferenceInput struct {
	ClientRef string `json:"client_ref,omitempty"`
	Category  string `json:"category"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// BatchPreferenceRequest is the POST /preferences/batch body.
type BatchPreferenceRequest struct {
	Preferences []PreferenceInput `json:"preferences"`
}

// BatchPreferenceResult is the per-item outcome of a batch preference create.
type BatchPreferenceResult struct {
	ClientRef string `json:"client_ref"`
	Status    string `json:"status"`
	ID        *int64 `json:"id,omitempty"` // assigned server identifier
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// BatchPreferenceResponse is the POST /preferences/batch response.
type BatchPreferenceResponse struct {
	Results []BatchPreferenceResult `json:"results"`
}

// BatchDeleteRequest is the DELETE /preferences/batch body; preferences are
// deleted by server identifier.
type BatchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// BatchDeleteResult is the per-item outcome of a batch preference delete.
type BatchDeleteResult struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// BatchDeleteResponse is the DELETE /preferences/batch response.
type BatchDeleteResponse struct {
	Results []BatchDeleteResult `json:"results"`
}

// RemotePreference is a server-owned preference record.
type RemotePreference struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Value    string `json:"value"`
}

// PreferenceOptions is the read-only reference data behind the preference UI.
type PreferenceOptions struct {
	Categories []string `json:"categories"`
	Types      []string `json:"types"`
}

// MessageResponse is a plain acknowledgment.
type MessageResponse struct {
	Message string `json:"message"`
}
