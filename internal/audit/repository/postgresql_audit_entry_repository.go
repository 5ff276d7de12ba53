// Package repository implements audit entry persistence for PostgreSQL and
// MySQL. The audit_entries table is append-only: Create is the only write
// path and nothing updates or deletes rows.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

const pgAuditEntryColumns = `id, object_name, record_id, column_name, old_value, new_value, actor, operation_id, signing_key_id, signature, created_at`

// PostgreSQLAuditEntryRepository persists audit entries in PostgreSQL. Uses
// native UUID types with transaction support via database.GetTx.
type PostgreSQLAuditEntryRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditEntryRepository creates a new PostgreSQL audit entry repository.
func NewPostgreSQLAuditEntryRepository(db *sql.DB) *PostgreSQLAuditEntryRepository {
	return &PostgreSQLAuditEntryRepository{db: db}
}

// Create appends one audit entry. It joins the transaction carried in the
// context, so the entry commits or aborts together with the data write it
// describes.
func (p *PostgreSQLAuditEntryRepository) Create(ctx context.Context, entry *auditDomain.AuditEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO audit_entries (` + pgAuditEntryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.ObjectName,
		entry.RecordID,
		entry.ColumnName,
		entry.OldValue,
		entry.NewValue,
		entry.Actor,
		entry.OperationID,
		entry.SigningKeyID,
		entry.Signature,
		entry.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit entry")
	}
	return nil
}

// List retrieves audit entries ordered by id (insertion order via UUIDv7)
// with optional filters: empty objectName/recordID and uuid.Nil operationID
// mean no filter. Returns an empty slice when nothing matches.
func (p *PostgreSQLAuditEntryRepository) List(
	ctx context.Context,
	objectName, recordID string,
	operationID uuid.UUID,
	offset, limit int,
) ([]*auditDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, p.db)

	var conditions []string
	var args []any
	if objectName != "" {
		args = append(args, objectName)
		conditions = append(conditions, fmt.Sprintf("object_name = $%d", len(args)))
	}
	if recordID != "" {
		args = append(args, recordID)
		conditions = append(conditions, fmt.Sprintf("record_id = $%d", len(args)))
	}
	if operationID != uuid.Nil {
		args = append(args, operationID)
		conditions = append(conditions, fmt.Sprintf("operation_id = $%d", len(args)))
	}

	query := `SELECT ` + pgAuditEntryColumns + ` FROM audit_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*auditDomain.AuditEntry, 0)
	for rows.Next() {
		var entry auditDomain.AuditEntry
		err := rows.Scan(
			&entry.ID,
			&entry.ObjectName,
			&entry.RecordID,
			&entry.ColumnName,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Actor,
			&entry.OperationID,
			&entry.SigningKeyID,
			&entry.Signature,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit entries")
	}

	return entries, nil
}
