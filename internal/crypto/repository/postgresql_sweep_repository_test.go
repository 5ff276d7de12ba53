package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

func TestPostgreSQLSweepRepository_SaveAndGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLSweepRepository(db)

	cp := &cryptoDomain.SweepCheckpoint{
		Tier:           classify.TierCritical,
		OldKeyID:       uuid.Must(uuid.NewV7()),
		NewKeyID:       uuid.Must(uuid.NewV7()),
		LastID:         uuid.Must(uuid.NewV7()),
		RewrappedCount: 500,
	}

	t.Run("save upserts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO sweep_checkpoints").
			WithArgs(cp.Tier, cp.OldKeyID, cp.NewKeyID, cp.LastID, cp.RewrappedCount, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(context.Background(), cp)
		require.NoError(t, err)
	})

	t.Run("get returns the checkpoint", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"tier", "old_key_id", "new_key_id", "last_id", "rewrapped_count", "updated_at"}).
			AddRow(string(cp.Tier), cp.OldKeyID, cp.NewKeyID, cp.LastID, cp.RewrappedCount, time.Now().UTC())

		mock.ExpectQuery("SELECT (.+) FROM sweep_checkpoints").
			WithArgs(classify.TierCritical).
			WillReturnRows(rows)

		got, err := repo.Get(context.Background(), classify.TierCritical)
		require.NoError(t, err)
		assert.Equal(t, cp.OldKeyID, got.OldKeyID)
		assert.Equal(t, cp.LastID, got.LastID)
		assert.Equal(t, uint64(500), got.RewrappedCount)
	})

	t.Run("get without a checkpoint", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM sweep_checkpoints").
			WithArgs(classify.TierInternal).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), classify.TierInternal)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("delete clears the checkpoint", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM sweep_checkpoints").
			WithArgs(classify.TierCritical).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete(context.Background(), classify.TierCritical)
		require.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
