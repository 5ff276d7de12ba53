// Package dto provides data transfer objects for HTTP request and response
// handling.
package dto

import (
	"encoding/base64"
	"time"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
)

// AuditEntryResponse represents one audit entry in API responses. Values of
// protected fields are opaque encrypted envelopes, never plaintext.
type AuditEntryResponse struct {
	ID           string    `json:"id"`
	ObjectName   string    `json:"object_name"`
	RecordID     string    `json:"record_id"`
	ColumnName   string    `json:"column_name"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	Actor        string    `json:"actor"`
	OperationID  string    `json:"operation_id"`
	SigningKeyID string    `json:"signing_key_id"`
	Signature    string    `json:"signature"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListAuditEntriesResponse represents a paginated list of audit entries.
type ListAuditEntriesResponse struct {
	Data []AuditEntryResponse `json:"data"`
}

// MapAuditEntryToResponse converts a domain audit entry to a response.
func MapAuditEntryToResponse(entry *auditDomain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:           entry.ID.String(),
		ObjectName:   entry.ObjectName,
		RecordID:     entry.RecordID,
		ColumnName:   entry.ColumnName,
		OldValue:     entry.OldValue,
		NewValue:     entry.NewValue,
		Actor:        entry.Actor,
		OperationID:  entry.OperationID.String(),
		SigningKeyID: entry.SigningKeyID.String(),
		Signature:    base64.StdEncoding.EncodeToString(entry.Signature),
		CreatedAt:    entry.CreatedAt,
	}
}

// MapAuditEntriesToListResponse converts a slice of domain audit entries to a
// list response.
func MapAuditEntriesToListResponse(entries []*auditDomain.AuditEntry) ListAuditEntriesResponse {
	data := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, MapAuditEntryToResponse(entry))
	}

	return ListAuditEntriesResponse{
		Data: data,
	}
}
