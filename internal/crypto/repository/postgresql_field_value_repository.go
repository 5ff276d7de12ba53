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

const pgFieldValueColumns = `id, entity_type, field_name, record_id, key_id, algorithm, wrapped_dek, dek_nonce, ciphertext, nonce, created_at, updated_at`

// PostgreSQLFieldValueRepository persists protected field values. Each row
// holds the envelope for one field of one record; (entity_type, field_name,
// record_id) is unique, so updates replace the envelope in place.
type PostgreSQLFieldValueRepository struct {
	db *sql.DB
}

// NewPostgreSQLFieldValueRepository creates a new PostgreSQL field value repository.
func NewPostgreSQLFieldValueRepository(db *sql.DB) *PostgreSQLFieldValueRepository {
	return &PostgreSQLFieldValueRepository{db: db}
}

// Upsert writes the envelope for a field, replacing any existing one for the
// same context. An update gets a brand-new envelope (fresh DEK, fresh row
// id), never a partial patch.
func (p *PostgreSQLFieldValueRepository) Upsert(ctx context.Context, fv *cryptoDomain.FieldValue) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO field_values (` + pgFieldValueColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  ON CONFLICT (entity_type, field_name, record_id) DO UPDATE
			  SET id = EXCLUDED.id,
				  key_id = EXCLUDED.key_id,
				  algorithm = EXCLUDED.algorithm,
				  wrapped_dek = EXCLUDED.wrapped_dek,
				  dek_nonce = EXCLUDED.dek_nonce,
				  ciphertext = EXCLUDED.ciphertext,
				  nonce = EXCLUDED.nonce,
				  updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		fv.ID,
		fv.EntityType,
		fv.FieldName,
		fv.RecordID,
		fv.KeyID,
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

// Get retrieves the envelope for one field of one record.
func (p *PostgreSQLFieldValueRepository) Get(
	ctx context.Context,
	entityType, fieldName, recordID string,
) (*cryptoDomain.FieldValue, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + pgFieldValueColumns + ` FROM field_values
			  WHERE entity_type = $1 AND field_name = $2 AND record_id = $3`

	var fv cryptoDomain.FieldValue
	err := querier.QueryRowContext(ctx, query, entityType, fieldName, recordID).Scan(
		&fv.ID,
		&fv.EntityType,
		&fv.FieldName,
		&fv.RecordID,
		&fv.KeyID,
		&fv.Algorithm,
		&fv.WrappedDek,
		&fv.DekNonce,
		&fv.Ciphertext,
		&fv.Nonce,
		&fv.CreatedAt,
		&fv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "field value not found")
		}
		return nil, apperrors.Wrap(err, "failed to get field value")
	}

	return &fv, nil
}

// Delete removes the envelope for one field of one record.
func (p *PostgreSQLFieldValueRepository) Delete(
	ctx context.Context,
	entityType, fieldName, recordID string,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM field_values
			  WHERE entity_type = $1 AND field_name = $2 AND record_id = $3`

	_, err := querier.ExecContext(ctx, query, entityType, fieldName, recordID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete field value")
	}
	return nil
}

// ListByKeyID pages through rows whose DEK is wrapped under the given KEK,
// keyset-paginated on the UUIDv7 row id so the sweep can resume from a
// checkpoint without offset scans.
func (p *PostgreSQLFieldValueRepository) ListByKeyID(
	ctx context.Context,
	keyID uuid.UUID,
	afterID uuid.UUID,
	limit int,
) ([]*cryptoDomain.FieldValue, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + pgFieldValueColumns + ` FROM field_values
			  WHERE key_id = $1 AND id > $2
			  ORDER BY id
			  LIMIT $3`

	rows, err := querier.QueryContext(ctx, query, keyID, afterID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list field values by key")
	}
	defer func() {
		_ = rows.Close()
	}()

	var values []*cryptoDomain.FieldValue
	for rows.Next() {
		var fv cryptoDomain.FieldValue
		err := rows.Scan(
			&fv.ID,
			&fv.EntityType,
			&fv.FieldName,
			&fv.RecordID,
			&fv.KeyID,
			&fv.Algorithm,
			&fv.WrappedDek,
			&fv.DekNonce,
			&fv.Ciphertext,
			&fv.Nonce,
			&fv.CreatedAt,
			&fv.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan field value")
		}
		values = append(values, &fv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list field values by key")
	}

	return values, nil
}

// CountByKeyID reports how many rows still reference the given KEK. The
// rotation drain is complete when this reaches zero.
func (p *PostgreSQLFieldValueRepository) CountByKeyID(ctx context.Context, keyID uuid.UUID) (uint64, error) {
	querier := database.GetTx(ctx, p.db)

	var count uint64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM field_values WHERE key_id = $1`, keyID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count field values by key")
	}
	return count, nil
}

// UpdateWrap replaces the wrapped DEK of a row with one wrapped under a new
// KEK, guarded on the current key id so a concurrent live write that already
// produced a fresh envelope is never clobbered. The ciphertext columns are
// untouched.
func (p *PostgreSQLFieldValueRepository) UpdateWrap(
	ctx context.Context,
	id uuid.UUID,
	oldKeyID, newKeyID uuid.UUID,
	wrappedDek, dekNonce []byte,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE field_values
			  SET key_id = $1, wrapped_dek = $2, dek_nonce = $3, updated_at = $4
			  WHERE id = $5 AND key_id = $6`

	result, err := querier.ExecContext(ctx, query, newKeyID, wrappedDek, dekNonce, time.Now().UTC(), id, oldKeyID)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update field value wrap")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update field value wrap")
	}
	return affected == 1, nil
}
