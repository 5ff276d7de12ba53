package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatekit/fieldcrypt/internal/interceptor"
	"github.com/estatekit/fieldcrypt/internal/testutil"
)

// recordingStore captures the enriched change sets the interceptor commits.
// The entity rows themselves live in the host platform's tables, outside
// this engine, so the store only needs to observe the write.
type recordingStore struct {
	applied []*interceptor.EnrichedChangeSet
}

func (s *recordingStore) ApplyChanges(_ context.Context, set *interceptor.EnrichedChangeSet) error {
	s.applied = append(s.applied, set)
	return nil
}

// TestAuditEntrySignature_EndToEnd exercises the full commit path: the
// interceptor encrypts protected fields and records signed audit entries in
// one transaction, and the verifier later detects any tampering.
func TestAuditEntrySignature_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbConfigs := []struct {
		name   string
		driver string
		skip   func(t *testing.T)
	}{
		{name: "PostgreSQL", driver: "postgres", skip: testutil.SkipIfNoPostgres},
		{name: "MySQL", driver: "mysql", skip: testutil.SkipIfNoMySQL},
	}

	for _, dbConfig := range dbConfigs {
		t.Run(dbConfig.name, func(t *testing.T) {
			dbConfig.skip(t)

			testCtx := setupIntegrationTest(t, dbConfig.driver)
			defer teardownIntegrationTest(t, testCtx)

			ctx := interceptor.WithActor(context.Background(), "estate-service")

			icpt, err := testCtx.container.PersistenceInterceptor()
			require.NoError(t, err)

			store := &recordingStore{}

			// Commit a create touching protected and unprotected fields
			enriched, err := icpt.Commit(ctx, store, &interceptor.ChangeSet{
				Changes: []interceptor.EntityChange{
					{
						EntityType: "wills",
						RecordID:   "will-1001",
						Op:         interceptor.OpCreate,
						After: map[string]string{
							"beneficiary_ssn": "123-45-6789",
							"title":           "Last Will and Testament",
						},
					},
				},
			})
			require.NoError(t, err)
			require.Len(t, store.applied, 1, "store should receive the enriched commit")

			t.Run("protected values reach the store sealed", func(t *testing.T) {
				fields := store.applied[0].Changes[0].Fields
				assert.NotEqual(t, "123-45-6789", fields["beneficiary_ssn"])
				assert.Contains(t, fields["beneficiary_ssn"], "fcv1:")
				assert.Equal(t, "Last Will and Testament", fields["title"])
			})

			t.Run("audit entries are persisted and queryable", func(t *testing.T) {
				recorder, err := testCtx.container.RecorderUseCase()
				require.NoError(t, err)

				entries, err := recorder.List(ctx, "wills", "will-1001", uuid.Nil, 0, 50)
				require.NoError(t, err)
				require.Len(t, entries, 2, "one entry per changed column")

				byColumn := map[string]bool{}
				for _, entry := range entries {
					byColumn[entry.ColumnName] = true
					assert.Equal(t, "estate-service", entry.Actor)
					assert.Equal(t, enriched.OperationID, entry.OperationID)
					assert.NotEmpty(t, entry.Signature)
					require.NotNil(t, entry.NewValue)
				}
				assert.True(t, byColumn["beneficiary_ssn"])
				assert.True(t, byColumn["title"])

				// Protected audit copies never hold plaintext
				for _, entry := range entries {
					if entry.ColumnName == "beneficiary_ssn" {
						assert.NotContains(t, *entry.NewValue, "123-45-6789")
					}
				}
			})

			t.Run("verifier passes on an untouched trail", func(t *testing.T) {
				verifier, err := testCtx.container.VerifierUseCase()
				require.NoError(t, err)

				report, err := verifier.Verify(ctx, 100)
				require.NoError(t, err)
				assert.Equal(t, uint64(2), report.Checked)
				assert.Empty(t, report.Invalid)
				assert.Empty(t, report.UnknownKey)
			})

			t.Run("verifier detects a tampered entry", func(t *testing.T) {
				// Flip the actor on one row directly in the database
				_, err := testCtx.db.Exec(`UPDATE audit_entries SET actor = 'mallory' WHERE column_name = 'title'`)
				require.NoError(t, err)

				verifier, err := testCtx.container.VerifierUseCase()
				require.NoError(t, err)

				report, err := verifier.Verify(ctx, 100)
				require.NoError(t, err)
				assert.Equal(t, uint64(2), report.Checked)
				assert.Len(t, report.Invalid, 1)

				// The operator endpoint reports the same finding
				resp, body := testCtx.makeRequest(t, http.MethodPost, "/v1/audit-entries/verify", nil, true)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Contains(t, string(body), report.Invalid[0].String())
			})
		})
	}
}
