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

// MySQLKekRepository implements KEK persistence for MySQL, using BINARY(16)
// for UUIDs and BLOB for key material. Generated columns with unique indexes
// enforce the one-Active and at-most-one-RotatingOut invariants per tier.
type MySQLKekRepository struct {
	db *sql.DB
}

// NewMySQLKekRepository creates a new MySQL KEK repository.
func NewMySQLKekRepository(db *sql.DB) *MySQLKekRepository {
	return &MySQLKekRepository{db: db}
}

// Create inserts a new KEK. The plaintext Key field is never written.
func (m *MySQLKekRepository) Create(ctx context.Context, kek *cryptoDomain.Kek) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO keks (id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := kek.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kek id")
	}

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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

// UpdateState transitions a KEK to a new lifecycle state.
func (m *MySQLKekRepository) UpdateState(ctx context.Context, kek *cryptoDomain.Kek) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE keks
			  SET state = ?, rotated_at = ?, retired_at = ?
			  WHERE id = ?`

	id, err := kek.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal kek id")
	}

	result, err := querier.ExecContext(ctx, query, kek.State, kek.RotatedAt, kek.RetiredAt, id)
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

func (m *MySQLKekRepository) scanKeks(rows *sql.Rows) ([]*cryptoDomain.Kek, error) {
	var keks []*cryptoDomain.Kek
	for rows.Next() {
		var kek cryptoDomain.Kek
		var id []byte

		err := rows.Scan(
			&id,
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
		if err := kek.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal kek id")
		}
		keks = append(keks, &kek)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to scan keks")
	}
	return keks, nil
}

// List retrieves all KEKs ordered by tier then version descending.
func (m *MySQLKekRepository) List(ctx context.Context) ([]*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at
			  FROM keks ORDER BY tier, version DESC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks")
	}
	defer func() {
		_ = rows.Close()
	}()

	return m.scanKeks(rows)
}

// ListByTier retrieves the KEKs of one tier ordered by version descending.
func (m *MySQLKekRepository) ListByTier(ctx context.Context, tier classify.Tier) ([]*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at
			  FROM keks WHERE tier = ? ORDER BY version DESC`

	rows, err := querier.QueryContext(ctx, query, tier)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keks by tier")
	}
	defer func() {
		_ = rows.Close()
	}()

	return m.scanKeks(rows)
}

// Get retrieves a single KEK by ID. Returns ErrKekNotFound if absent.
func (m *MySQLKekRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tier, state, version, algorithm, master_key_id, encrypted_key, nonce, created_at, rotated_at, retired_at
			  FROM keks WHERE id = ?`

	binID, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal kek id")
	}

	var kek cryptoDomain.Kek
	var rawID []byte
	err = querier.QueryRowContext(ctx, query, binID).Scan(
		&rawID,
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
	if err := kek.ID.UnmarshalBinary(rawID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal kek id")
	}

	return &kek, nil
}
