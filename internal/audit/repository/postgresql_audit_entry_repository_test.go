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

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	"github.com/estatekit/fieldcrypt/internal/database"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, mock
}

func testAuditEntry() *auditDomain.AuditEntry {
	oldValue := "sealed-old"
	newValue := "sealed-new"

	return &auditDomain.AuditEntry{
		ID:           uuid.Must(uuid.NewV7()),
		ObjectName:   "Person",
		RecordID:     "person-42",
		ColumnName:   "ssn",
		OldValue:     &oldValue,
		NewValue:     &newValue,
		Actor:        "svc-estate-api",
		OperationID:  uuid.Must(uuid.NewV7()),
		SigningKeyID: uuid.Must(uuid.NewV7()),
		Signature:    []byte("signature"),
		CreatedAt:    time.Now().UTC(),
	}
}

func auditEntryRows(entries ...*auditDomain.AuditEntry) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "object_name", "record_id", "column_name", "old_value", "new_value",
		"actor", "operation_id", "signing_key_id", "signature", "created_at",
	})
	for _, e := range entries {
		rows.AddRow(
			e.ID, e.ObjectName, e.RecordID, e.ColumnName, e.OldValue, e.NewValue,
			e.Actor, e.OperationID, e.SigningKeyID, e.Signature, e.CreatedAt,
		)
	}
	return rows
}

func TestPostgreSQLAuditEntryRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLAuditEntryRepository(db)
	entry := testAuditEntry()

	t.Run("appends the entry", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO audit_entries").
			WithArgs(
				entry.ID, entry.ObjectName, entry.RecordID, entry.ColumnName,
				entry.OldValue, entry.NewValue, entry.Actor, entry.OperationID,
				entry.SigningKeyID, entry.Signature, entry.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), entry)
		require.NoError(t, err)
	})

	t.Run("joins the transaction in the context", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO audit_entries").
			WithArgs(
				entry.ID, entry.ObjectName, entry.RecordID, entry.ColumnName,
				entry.OldValue, entry.NewValue, entry.Actor, entry.OperationID,
				entry.SigningKeyID, entry.Signature, entry.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		txManager := database.NewTxManager(db)
		err := txManager.WithTx(context.Background(), func(ctx context.Context) error {
			return repo.Create(ctx, entry)
		})
		require.NoError(t, err)
	})

	t.Run("exec failure", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO audit_entries").
			WillReturnError(assert.AnError)

		err := repo.Create(context.Background(), entry)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLAuditEntryRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgreSQLAuditEntryRepository(db)

	first := testAuditEntry()
	second := testAuditEntry()
	second.ColumnName = "date_of_birth"
	second.NewValue = nil

	t.Run("unfiltered", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM audit_entries ORDER BY id LIMIT \\$1 OFFSET \\$2").
			WithArgs(50, 0).
			WillReturnRows(auditEntryRows(first, second))

		entries, err := repo.List(context.Background(), "", "", uuid.Nil, 0, 50)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.Equal(t, "sealed-old", *entries[0].OldValue)
		assert.Nil(t, entries[1].NewValue)
	})

	t.Run("all filters applied", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM audit_entries WHERE object_name = \\$1 AND record_id = \\$2 AND operation_id = \\$3").
			WithArgs("Person", "person-42", first.OperationID, 50, 0).
			WillReturnRows(auditEntryRows(first))

		entries, err := repo.List(context.Background(), "Person", "person-42", first.OperationID, 0, 50)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, first.OperationID, entries[0].OperationID)
	})

	t.Run("no matches returns an empty slice", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM audit_entries").
			WithArgs("Will", 50, 0).
			WillReturnRows(auditEntryRows())

		entries, err := repo.List(context.Background(), "Will", "", uuid.Nil, 0, 50)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("query failure", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM audit_entries").
			WillReturnError(assert.AnError)

		_, err := repo.List(context.Background(), "", "", uuid.Nil, 0, 50)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
