package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// MySQLSweepRepository persists re-wrap sweep checkpoints for MySQL.
type MySQLSweepRepository struct {
	db *sql.DB
}

// NewMySQLSweepRepository creates a new MySQL sweep repository.
func NewMySQLSweepRepository(db *sql.DB) *MySQLSweepRepository {
	return &MySQLSweepRepository{db: db}
}

// Save upserts the checkpoint for a tier.
func (m *MySQLSweepRepository) Save(ctx context.Context, cp *cryptoDomain.SweepCheckpoint) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO sweep_checkpoints (tier, old_key_id, new_key_id, last_id, rewrapped_count, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
				  old_key_id = VALUES(old_key_id),
				  new_key_id = VALUES(new_key_id),
				  last_id = VALUES(last_id),
				  rewrapped_count = VALUES(rewrapped_count),
				  updated_at = VALUES(updated_at)`

	oldKeyID, err := cp.OldKeyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal old key id")
	}
	newKeyID, err := cp.NewKeyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal new key id")
	}
	lastID, err := cp.LastID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cursor id")
	}

	_, err = querier.ExecContext(ctx, query, cp.Tier, oldKeyID, newKeyID, lastID, cp.RewrappedCount, time.Now().UTC())
	if err != nil {
		return apperrors.Wrap(err, "failed to save sweep checkpoint")
	}
	return nil
}

// Get retrieves the checkpoint for a tier. Returns ErrNotFound when no sweep
// has been checkpointed for the tier.
func (m *MySQLSweepRepository) Get(ctx context.Context, tier classify.Tier) (*cryptoDomain.SweepCheckpoint, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT tier, old_key_id, new_key_id, last_id, rewrapped_count, updated_at
			  FROM sweep_checkpoints WHERE tier = ?`

	var cp cryptoDomain.SweepCheckpoint
	var oldKeyID, newKeyID, lastID []byte
	err := querier.QueryRowContext(ctx, query, tier).Scan(
		&cp.Tier,
		&oldKeyID,
		&newKeyID,
		&lastID,
		&cp.RewrappedCount,
		&cp.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "sweep checkpoint not found")
		}
		return nil, apperrors.Wrap(err, "failed to get sweep checkpoint")
	}

	if err := cp.OldKeyID.UnmarshalBinary(oldKeyID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal old key id")
	}
	if err := cp.NewKeyID.UnmarshalBinary(newKeyID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal new key id")
	}
	if err := cp.LastID.UnmarshalBinary(lastID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal cursor id")
	}

	return &cp, nil
}

// Delete removes the checkpoint for a tier once its sweep has drained.
func (m *MySQLSweepRepository) Delete(ctx context.Context, tier classify.Tier) error {
	querier := database.GetTx(ctx, m.db)

	_, err := querier.ExecContext(ctx, `DELETE FROM sweep_checkpoints WHERE tier = ?`, tier)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete sweep checkpoint")
	}
	return nil
}
