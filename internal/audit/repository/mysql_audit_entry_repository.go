package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

const mysqlAuditEntryColumns = `id, object_name, record_id, column_name, old_value, new_value, actor, operation_id, signing_key_id, signature, created_at`

// MySQLAuditEntryRepository persists audit entries for MySQL, storing UUIDs
// as BINARY(16).
type MySQLAuditEntryRepository struct {
	db *sql.DB
}

// NewMySQLAuditEntryRepository creates a new MySQL audit entry repository.
func NewMySQLAuditEntryRepository(db *sql.DB) *MySQLAuditEntryRepository {
	return &MySQLAuditEntryRepository{db: db}
}

// Create appends one audit entry within the caller's transaction.
func (m *MySQLAuditEntryRepository) Create(ctx context.Context, entry *auditDomain.AuditEntry) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO audit_entries (` + mysqlAuditEntryColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit entry id")
	}
	operationID, err := entry.OperationID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal operation id")
	}
	signingKeyID, err := entry.SigningKeyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal signing key id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		entry.ObjectName,
		entry.RecordID,
		entry.ColumnName,
		entry.OldValue,
		entry.NewValue,
		entry.Actor,
		operationID,
		signingKeyID,
		entry.Signature,
		entry.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create audit entry")
	}
	return nil
}

// List retrieves audit entries ordered by id with optional filters: empty
// objectName/recordID and uuid.Nil operationID mean no filter.
func (m *MySQLAuditEntryRepository) List(
	ctx context.Context,
	objectName, recordID string,
	operationID uuid.UUID,
	offset, limit int,
) ([]*auditDomain.AuditEntry, error) {
	querier := database.GetTx(ctx, m.db)

	var conditions []string
	var args []any
	if objectName != "" {
		conditions = append(conditions, "object_name = ?")
		args = append(args, objectName)
	}
	if recordID != "" {
		conditions = append(conditions, "record_id = ?")
		args = append(args, recordID)
	}
	if operationID != uuid.Nil {
		binOperationID, err := operationID.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal operation id")
		}
		conditions = append(conditions, "operation_id = ?")
		args = append(args, binOperationID)
	}

	query := `SELECT ` + mysqlAuditEntryColumns + ` FROM audit_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

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
		var id, opID, keyID []byte

		err := rows.Scan(
			&id,
			&entry.ObjectName,
			&entry.RecordID,
			&entry.ColumnName,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Actor,
			&opID,
			&keyID,
			&entry.Signature,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan audit entry")
		}
		if err := entry.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal audit entry id")
		}
		if err := entry.OperationID.UnmarshalBinary(opID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal operation id")
		}
		if err := entry.SigningKeyID.UnmarshalBinary(keyID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal signing key id")
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit entries")
	}

	return entries, nil
}
