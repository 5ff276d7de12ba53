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

// PostgreSQLSweepRepository persists re-wrap sweep checkpoints, one row per
// tier. The checkpoint survives restarts so a sweep resumes from its cursor
// instead of rescanning rows it already re-wrapped.
type PostgreSQLSweepRepository struct {
	db *sql.DB
}

// NewPostgreSQLSweepRepository creates a new PostgreSQL sweep repository.
func NewPostgreSQLSweepRepository(db *sql.DB) *PostgreSQLSweepRepository {
	return &PostgreSQLSweepRepository{db: db}
}

// Save upserts the checkpoint for a tier.
func (p *PostgreSQLSweepRepository) Save(ctx context.Context, cp *cryptoDomain.SweepCheckpoint) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO sweep_checkpoints (tier, old_key_id, new_key_id, last_id, rewrapped_count, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (tier) DO UPDATE
			  SET old_key_id = EXCLUDED.old_key_id,
				  new_key_id = EXCLUDED.new_key_id,
				  last_id = EXCLUDED.last_id,
				  rewrapped_count = EXCLUDED.rewrapped_count,
				  updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		cp.Tier,
		cp.OldKeyID,
		cp.NewKeyID,
		cp.LastID,
		cp.RewrappedCount,
		time.Now().UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to save sweep checkpoint")
	}
	return nil
}

// Get retrieves the checkpoint for a tier. Returns ErrNotFound when no sweep
// has been checkpointed for the tier.
func (p *PostgreSQLSweepRepository) Get(ctx context.Context, tier classify.Tier) (*cryptoDomain.SweepCheckpoint, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT tier, old_key_id, new_key_id, last_id, rewrapped_count, updated_at
			  FROM sweep_checkpoints WHERE tier = $1`

	var cp cryptoDomain.SweepCheckpoint
	err := querier.QueryRowContext(ctx, query, tier).Scan(
		&cp.Tier,
		&cp.OldKeyID,
		&cp.NewKeyID,
		&cp.LastID,
		&cp.RewrappedCount,
		&cp.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "sweep checkpoint not found")
		}
		return nil, apperrors.Wrap(err, "failed to get sweep checkpoint")
	}

	return &cp, nil
}

// Delete removes the checkpoint for a tier once its sweep has drained.
func (p *PostgreSQLSweepRepository) Delete(ctx context.Context, tier classify.Tier) error {
	querier := database.GetTx(ctx, p.db)

	_, err := querier.ExecContext(ctx, `DELETE FROM sweep_checkpoints WHERE tier = $1`, tier)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete sweep checkpoint")
	}
	return nil
}
