package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

func TestMySQLKekRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLKekRepository(db)
	kek := testKek(classify.TierCritical, cryptoDomain.KekStateActive, 1)

	binID, err := kek.ID.MarshalBinary()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO keks").
		WithArgs(
			binID, kek.Tier, kek.State, kek.Version, kek.Algorithm, kek.MasterKeyID,
			kek.EncryptedKey, kek.Nonce, kek.CreatedAt, nil, nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Create(context.Background(), kek)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLKekRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLKekRepository(db)

	kek := testKek(classify.TierSensitive, cryptoDomain.KekStateActive, 2)
	binID, err := kek.ID.MarshalBinary()
	require.NoError(t, err)

	rows := sqlmock.NewRows(kekColumns).AddRow(
		binID, string(kek.Tier), string(kek.State), kek.Version, string(kek.Algorithm),
		kek.MasterKeyID, kek.EncryptedKey, kek.Nonce, kek.CreatedAt, nil, nil,
	)

	mock.ExpectQuery("SELECT (.+) FROM keks ORDER BY tier, version DESC").WillReturnRows(rows)

	keks, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, keks, 1)
	assert.Equal(t, kek.ID, keks[0].ID, "binary uuid round-trips")
	assert.Equal(t, classify.TierSensitive, keks[0].Tier)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLKekRepository_UpdateState_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLKekRepository(db)
	kek := testKek(classify.TierInternal, cryptoDomain.KekStateRetired, 1)

	mock.ExpectExec("UPDATE keks").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateState(context.Background(), kek)
	assert.ErrorIs(t, err, cryptoDomain.ErrKekNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLFieldValueRepository_UpdateWrap(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMySQLFieldValueRepository(db)

	id := uuid.Must(uuid.NewV7())
	oldKeyID := uuid.Must(uuid.NewV7())
	newKeyID := uuid.Must(uuid.NewV7())

	mock.ExpectExec("UPDATE field_values").WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateWrap(context.Background(), id, oldKeyID, newKeyID, []byte("wrapped"), []byte("nonce-123456"))
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
