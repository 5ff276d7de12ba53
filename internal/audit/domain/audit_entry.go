// Package domain defines the audit trail models.
//
// Audit entries are append-only compliance records: one entry per changed
// field per commit, never updated or deleted, surviving the deletion of the
// entity they describe. Entries carry an HMAC signature so tampering with a
// persisted entry is detectable.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// ErrSignatureInvalid indicates an audit entry's signature does not match
// its content. The entry was tampered with or signed under an unknown key.
var ErrSignatureInvalid = apperrors.Wrap(apperrors.ErrInvalidInput, "audit signature invalid")

// AuditEntry records one field change from one logical commit. OldValue and
// NewValue of protected fields hold opaque encrypted envelopes, never
// plaintext; unprotected fields are recorded as given. OperationID groups
// every entry produced by the same commit.
type AuditEntry struct {
	ID           uuid.UUID
	ObjectName   string  // entity type of the changed record
	RecordID     string  // identifier of the changed record
	ColumnName   string  // field that changed
	OldValue     *string // nil on create
	NewValue     *string // nil on delete
	Actor        string  // opaque acting principal
	OperationID  uuid.UUID
	SigningKeyID uuid.UUID // KEK the HMAC key was derived from
	Signature    []byte
	CreatedAt    time.Time
}
