// Package usecase implements the audit trail recorder and the signature
// verifier.
package usecase

import (
	"context"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
)

// AuditEntryRepository abstracts append-only audit persistence.
// Implementations join a transaction carried in the context.
type AuditEntryRepository interface {
	// Create appends one audit entry.
	Create(ctx context.Context, entry *auditDomain.AuditEntry) error

	// List retrieves entries ordered by id. Empty objectName/recordID and
	// uuid.Nil operationID mean no filter.
	List(
		ctx context.Context,
		objectName, recordID string,
		operationID uuid.UUID,
		offset, limit int,
	) ([]*auditDomain.AuditEntry, error)
}

// RecorderUseCase records audit entries. Recording happens inside the
// caller's transaction: the entries commit or abort together with the data
// write they describe, never separately.
type RecorderUseCase interface {
	// Record signs and appends the entries of one commit. Every failure is
	// ErrAuditFailure; the caller must abort its transaction on error.
	Record(ctx context.Context, entries []*auditDomain.AuditEntry) error

	// List retrieves entries for operator queries.
	List(
		ctx context.Context,
		objectName, recordID string,
		operationID uuid.UUID,
		offset, limit int,
	) ([]*auditDomain.AuditEntry, error)
}

// VerifyReport summarizes a signature verification run over the audit trail.
type VerifyReport struct {
	Checked    uint64      `json:"checked"`
	Invalid    []uuid.UUID `json:"invalid,omitempty"`     // tampered or re-signed entries
	UnknownKey []uuid.UUID `json:"unknown_key,omitempty"` // signed under a key absent from the ring
}

// VerifierUseCase walks the audit trail and checks every entry's signature.
type VerifierUseCase interface {
	Verify(ctx context.Context, batchSize int) (*VerifyReport, error)
}
