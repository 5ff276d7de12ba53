package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

func testRegistry(t *testing.T) *classify.Registry {
	t.Helper()
	registry, err := classify.NewRegistry([]classify.ProtectedField{
		{EntityType: "Person", FieldName: "ssn", Tier: classify.TierCritical},
		{EntityType: "Person", FieldName: "date_of_birth", Tier: classify.TierSensitive},
	})
	require.NoError(t, err)
	return registry
}

func TestFieldValueUseCase_Encrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("seals and persists a protected field", func(t *testing.T) {
		encryptionService := &mockEncryptionService{}
		fieldValueRepo := &mockFieldValueRepository{}

		encCtx := cryptoDomain.EncryptionContext{
			EntityType: "Person",
			FieldName:  "ssn",
			RecordID:   "person-42",
		}
		envelope := &cryptoDomain.EncryptedValue{
			KeyID:      uuid.Must(uuid.NewV7()),
			Algorithm:  cryptoDomain.AESGCM,
			WrappedDek: []byte("wrapped-dek"),
			DekNonce:   []byte("dek-nonce"),
			Ciphertext: []byte("ciphertext"),
			Nonce:      []byte("nonce"),
			Context:    encCtx,
		}

		encryptionService.On(
			"Encrypt", mock.Anything, classify.TierCritical, []byte("078-05-1120"), encCtx,
		).Return(envelope, nil).Once()
		fieldValueRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(fv *cryptoDomain.FieldValue) bool {
			return fv.EntityType == "Person" &&
				fv.FieldName == "ssn" &&
				fv.RecordID == "person-42" &&
				fv.KeyID == envelope.KeyID &&
				fv.ID != uuid.Nil
		})).Return(nil).Once()

		uc := NewFieldValueUseCase(testRegistry(t), encryptionService, fieldValueRepo)
		fv, err := uc.Encrypt(ctx, "Person", "ssn", "person-42", []byte("078-05-1120"))
		require.NoError(t, err)
		assert.Equal(t, envelope.KeyID, fv.KeyID)
		fieldValueRepo.AssertExpectations(t)
	})

	t.Run("rejects unregistered fields before touching key material", func(t *testing.T) {
		encryptionService := &mockEncryptionService{}
		fieldValueRepo := &mockFieldValueRepository{}

		uc := NewFieldValueUseCase(testRegistry(t), encryptionService, fieldValueRepo)
		_, err := uc.Encrypt(ctx, "Person", "nickname", "person-42", []byte("Bud"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		encryptionService.AssertNotCalled(
			t, "Encrypt", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		)
	})

	t.Run("does not persist when sealing fails", func(t *testing.T) {
		encryptionService := &mockEncryptionService{}
		fieldValueRepo := &mockFieldValueRepository{}

		encryptionService.On("Encrypt", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, cryptoDomain.ErrNoActiveKek).Once()

		uc := NewFieldValueUseCase(testRegistry(t), encryptionService, fieldValueRepo)
		_, err := uc.Encrypt(ctx, "Person", "ssn", "person-42", []byte("078-05-1120"))
		assert.ErrorIs(t, err, cryptoDomain.ErrNoActiveKek)
		fieldValueRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})
}

func TestFieldValueUseCase_Decrypt(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuilds the expected context from caller coordinates", func(t *testing.T) {
		encryptionService := &mockEncryptionService{}
		fieldValueRepo := &mockFieldValueRepository{}

		encCtx := cryptoDomain.EncryptionContext{
			EntityType: "Person",
			FieldName:  "ssn",
			RecordID:   "person-42",
		}
		fv := cryptoDomain.NewFieldValue(&cryptoDomain.EncryptedValue{
			KeyID:      uuid.Must(uuid.NewV7()),
			Algorithm:  cryptoDomain.AESGCM,
			WrappedDek: []byte("wrapped-dek"),
			DekNonce:   []byte("dek-nonce"),
			Ciphertext: []byte("ciphertext"),
			Nonce:      []byte("nonce"),
			Context:    encCtx,
		})

		fieldValueRepo.On("Get", mock.Anything, "Person", "ssn", "person-42").
			Return(fv, nil).Once()
		encryptionService.On("Decrypt", mock.Anything, mock.Anything, encCtx).
			Return([]byte("078-05-1120"), nil).Once()

		uc := NewFieldValueUseCase(testRegistry(t), encryptionService, fieldValueRepo)
		plaintext, err := uc.Decrypt(ctx, "Person", "ssn", "person-42")
		require.NoError(t, err)
		assert.Equal(t, []byte("078-05-1120"), plaintext)
		encryptionService.AssertExpectations(t)
	})

	t.Run("missing value", func(t *testing.T) {
		encryptionService := &mockEncryptionService{}
		fieldValueRepo := &mockFieldValueRepository{}

		fieldValueRepo.On("Get", mock.Anything, "Person", "ssn", "person-404").
			Return(nil, apperrors.ErrNotFound).Once()

		uc := NewFieldValueUseCase(testRegistry(t), encryptionService, fieldValueRepo)
		_, err := uc.Decrypt(ctx, "Person", "ssn", "person-404")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		encryptionService.AssertNotCalled(
			t, "Decrypt", mock.Anything, mock.Anything, mock.Anything,
		)
	})
}

func TestFieldValueUseCase_Delete(t *testing.T) {
	fieldValueRepo := &mockFieldValueRepository{}
	fieldValueRepo.On("Delete", mock.Anything, "Person", "ssn", "person-42").
		Return(nil).Once()

	uc := NewFieldValueUseCase(testRegistry(t), &mockEncryptionService{}, fieldValueRepo)
	err := uc.Delete(context.Background(), "Person", "ssn", "person-42")
	assert.NoError(t, err)
	fieldValueRepo.AssertExpectations(t)
}
