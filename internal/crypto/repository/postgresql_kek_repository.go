// Package repository implements persistence for KEKs, protected field
// values, and re-wrap sweep checkpoints, for PostgreSQL and MySQL.
//
// All repositories are transaction-aware via database.GetTx(): when the
// context carries a transaction the operation joins it, which is how key
// rotation commits its state transitions atomically.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// PostgreSQLKekRepository implements KEK persistence for PostgreSQL, using
// native UUID and BYTEA columns. Partial unique indexes on (tier) enforce
// one Active and at most one RotatingOut KEK per tier at the database level,
// backing up the in-process tier locks across processes.
type PostgreSQLKekRepository struct {
	db *sql.DB
}

// NewPostgreSQLKekRepository creates a new PostgreSQL KEK repository.
func NewPostgreSQLKekRepository(db *sql.DB) *PostgreSQLKekRepository {
	return &PostgreSQLKekRepository{db: db}
}

// Create inserts a new KEK. The plaintext Key field is never written.
func (p *PostgreSQLKekRepository) Create(ctx context.Context, kek *cryptoDomain.Kek) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO keks (id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := querier.ExecContext(
		ctx,
		query,
		kek.ID,
		kek.Tier,
		kek.State,
		kek.Version,
		kek.Algorithm,
		kek.MasterKeyID,
		kek.EncryptedKey,
		kek.Nonce,
		kek.CreatedAt,
		kek.RotatedAt,
		kek.RetiredAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create kek")
	}
	return nil
}

// UpdateState transitions a KEK to a new lifecycle state, recording the
// transition timestamps. Returns ErrKekNotFound if no row matched.
func (p *PostgreSQLKekRepository) UpdateState(ctx context.Context, kek *cryptoDomain.Kek) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE keks
			  SET state = $1, rotated_at = $2, retired_at = $3
			  WHERE id = $4`

	result, err := querier.ExecContext(ctx, query, kek.State, kek.RotatedAt, kek.RetiredAt, kek.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek state")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek state")
	}
	if affected == 0 {
		return cryptoDomain.ErrKekNotFound
	}
	return nil
}

// List retrieves all KEKs ordered by tier then version descending, so the
// newest key for each tier comes first.
func (p *PostgreSQLKekRepository) List(ctx context.Context) ([]*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at
			  FROM keks ORDER BY tier, version DESC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keks []*cryptoDomain.Kek
	for rows.Next() {
		var kek cryptoDomain.Kek
		err := rows.Scan(
			&kek.ID,
			&kek.Tier,
			&kek.State,
			&kek.Version,
			&kek.Algorithm,
			&kek.MasterKeyID,
			&kek.EncryptedKey,
			&kek.Nonce,
			&kek.CreatedAt,
			&kek.RotatedAt,
			&kek.RetiredAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan kek")
		}
		keks = append(keks, &kek)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks")
	}

	return keks, nil
}

// ListByTier retrieves the KEKs of one tier ordered by version descending.
func (p *PostgreSQLKekRepository) ListByTier(ctx context.Context, tier classify.Tier) ([]*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at
			  FROM keks WHERE tier = $1 ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, tier)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks by tier")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keks []*cryptoDomain.Kek
	for rows.Next() {
		var kek cryptoDomain.Kek
		err := rows.Scan(
			&kek.ID,
			&kek.Tier,
			&kek.State,
			&kek.Version,
			&kek.Algorithm,
			&kek.MasterKeyID,
			&kek.EncryptedKey,
			&kek.Nonce,
			&kek.CreatedAt,
			&kek.RotatedAt,
			&kek.RetiredAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan kek")
		}
		keks = append(keks, &kek)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks by tier")
	}

	return keks, nil
}

// Get retrieves a single KEK by ID. Returns ErrKekNotFound if absent.
func (p *PostgreSQLKekRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at
			  FROM keks WHERE id = $1`

	var kek cryptoDomain.Kek
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&kek.ID,
		&kek.Tier,
		&kek.State,
		&kek.Version,
		&kek.Algorithm,
		&kek.MasterKeyID,
		&kek.EncryptedKey,
		&kek.Nonce,
		&kek.CreatedAt,
		&kek.RotatedAt,
		&kek.RetiredAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cryptoDomain.ErrKekNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kek")
	}

	return &kek, nil
}
