package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

const mysqlFieldValueColumns = `id, entity_type, field_name, record_id, key_id, algorithm, wrapped_dek, dek_nonce, ciphertext, nonce, created_at, updated_at`

// MySQLFieldValueRepository persists protected field values for MySQL,
// storing UUIDs as BINARY(16). UUIDv7 ids keep the binary ordering aligned
// with insertion order, which the sweep's keyset pagination relies on.
type MySQLFieldValueRepository struct {
	db *sql.DB
}

// NewMySQLFieldValueRepository creates a new MySQL field value repository.
func NewMySQLFieldValueRepository(db *sql.DB) *MySQLFieldValueRepository {
	return &MySQLFieldValueRepository{db: db}
}

// Upsert writes the envelope for a field, replacing any existing one for the
// same context.
func (m *MySQLFieldValueRepository) Upsert(ctx context.Context, fv *cryptoDomain.FieldValue) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO field_values (` + mysqlFieldValueColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
				  id = VALUES(id),
				  key_id = VALUES(key_id),
				  algorithm = VALUES(algorithm),
				  wrapped_dek = VALUES(wrapped_dek),
				  dek_nonce = VALUES(dek_nonce),
				  ciphertext = VALUES(ciphertext),
				  nonce = VALUES(nonce),
				  updated_at = VALUES(updated_at)`

	id, err := fv.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal field value id")
	}
	keyID, err := fv.KeyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		fv.EntityType,
		fv.FieldName,
		fv.RecordID,
		keyID,
		fv.Algorithm,
		fv.WrappedDek,
		fv.DekNonce,
		fv.Ciphertext,
		fv.Nonce,
		fv.CreatedAt,
		fv.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert field value")
	}
	return nil
}

func scanMySQLFieldValue(scan func(dest ...any) error) (*cryptoDomain.FieldValue, error) {
	var fv cryptoDomain.FieldValue
	var id, keyID []byte

	err := scan(
		&id,
		&fv.EntityType,
		&fv.FieldName,
		&fv.RecordID,
		&keyID,
		&fv.Algorithm,
		&fv.WrappedDek,
		&fv.DekNonce,
		&fv.Ciphertext,
		&fv.Nonce,
		&fv.CreatedAt,
		&fv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fv.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal field value id")
	}
	if err := fv.KeyID.UnmarshalBinary(keyID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal key id")
	}
	return &fv, nil
}

// Get retrieves the envelope for one field of one record.
func (m *MySQLFieldValueRepository) Get(
	ctx context.Context,
	entityType, fieldName, recordID string,
) (*cryptoDomain.FieldValue, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlFieldValueColumns + ` FROM field_values
			  WHERE entity_type = ? AND field_name = ? AND record_id = ?`

	row := querier.QueryRowContext(ctx, query, entityType, fieldName, recordID)
	fv, err := scanMySQLFieldValue(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "field value not found")
		}
		return nil, apperrors.Wrap(err, "failed to get field value")
	}
	return fv, nil
}

// Delete removes the envelope for one field of one record.
func (m *MySQLFieldValueRepository) Delete(
	ctx context.Context,
	entityType, fieldName, recordID string,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM field_values
			  WHERE entity_type = ? AND field_name = ? AND record_id = ?`

	_, err := querier.ExecContext(ctx, query, entityType, fieldName, recordID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete field value")
	}
	return nil
}

// ListByKeyID pages through rows wrapped under the given KEK, keyset-paginated
// on the row id.
func (m *MySQLFieldValueRepository) ListByKeyID(
	ctx context.Context,
	keyID uuid.UUID,
	afterID uuid.UUID,
	limit int,
) ([]*cryptoDomain.FieldValue, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlFieldValueColumns + ` FROM field_values
			  WHERE key_id = ? AND id > ?
			  ORDER BY id
			  LIMIT ?`

	binKeyID, err := keyID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key id")
	}
	binAfterID, err := afterID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cursor id")
	}

	rows, err := querier.QueryContext(ctx, query, binKeyID, binAfterID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list field values by key")
	}
	defer func() {
		_ = rows.Close()
	}()

	var values []*cryptoDomain.FieldValue
	for rows.Next() {
		fv, err := scanMySQLFieldValue(rows.Scan)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan field value")
		}
		values = append(values, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list field values by key")
	}

	return values, nil
}

// CountByKeyID reports how many rows still reference the given KEK.
func (m *MySQLFieldValueRepository) CountByKeyID(ctx context.Context, keyID uuid.UUID) (uint64, error) {
	querier := database.GetTx(ctx, m.db)

	binKeyID, err := keyID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal key id")
	}

	var count uint64
	err = querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM field_values WHERE key_id = ?`, binKeyID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count field values by key")
	}
	return count, nil
}

// UpdateWrap replaces the wrapped DEK of a row with one wrapped under a new
// KEK, guarded on the current key id. The ciphertext columns are untouched.
func (m *MySQLFieldValueRepository) UpdateWrap(
	ctx context.Context,
	id uuid.UUID,
	oldKeyID, newKeyID uuid.UUID,
	wrappedDek, dekNonce []byte,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE field_values
			  SET key_id = ?, wrapped_dek = ?, dek_nonce = ?, updated_at = ?
			  WHERE id = ? AND key_id = ?`

	binID, err := id.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal field value id")
	}
	binOldKeyID, err := oldKeyID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal key id")
	}
	binNewKeyID, err := newKeyID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal key id")
	}

	result, err := querier.ExecContext(ctx, query, binNewKeyID, wrappedDek, dekNonce, time.Now().UTC(), binID, binOldKeyID)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update field value wrap")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update field value wrap")
	}
	return affected == 1, nil
}
