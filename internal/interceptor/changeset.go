// Package interceptor orchestrates transparent field encryption and audit
// recording around each entity commit. The application hands over a pre-commit
// change set; the interceptor computes per-field diffs, encrypts protected
// fields, builds the commit's audit entries under one operation id, and writes
// the enriched rows and audit rows in a single transaction.
package interceptor

import (
	"fmt"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// Op is the kind of entity mutation being committed.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Valid reports whether the operation is one of the known kinds.
func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// EntityChange is one tracked entity's pending mutation. Before holds the
// field values as loaded (empty for creates), After the values as the
// application wants them persisted (empty for deletes). Protected fields
// carry plaintext here; they leave the interceptor as opaque ciphertext.
type EntityChange struct {
	EntityType string
	RecordID   string
	Op         Op
	Before     map[string]string
	After      map[string]string
}

// Validate checks the change's identifying attributes.
func (c *EntityChange) Validate() error {
	if c.EntityType == "" || c.RecordID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "entity type and record id are required")
	}
	if !c.Op.Valid() {
		return apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("unknown operation %q", c.Op))
	}
	switch c.Op {
	case OpCreate:
		if len(c.After) == 0 {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "create without field values")
		}
	case OpDelete:
		if len(c.Before) == 0 {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "delete without prior field values")
		}
	}
	return nil
}

// ChangeSet is the full set of entity mutations in one logical commit.
type ChangeSet struct {
	Changes []EntityChange
}

// EnrichedChange is one entity's mutation after enrichment: protected field
// values replaced with their opaque encrypted form, ready for the store.
type EnrichedChange struct {
	EntityType string
	RecordID   string
	Op         Op
	Fields     map[string]string
}

// EnrichedChangeSet is the output of OnBeforeCommit: the rows to persist and
// the audit entries describing them, all tagged with one operation id.
type EnrichedChangeSet struct {
	OperationID  uuid.UUID
	Changes      []EnrichedChange
	AuditEntries []*auditDomain.AuditEntry
}
