package usecase

import (
	"context"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// fieldValueUseCase implements FieldValueUseCase on top of the envelope
// encryption service and the field value repository. The classification
// registry decides the tier; unregistered fields are rejected rather than
// silently stored in the clear.
type fieldValueUseCase struct {
	registry          *classify.Registry
	encryptionService cryptoService.EncryptionService
	fieldValueRepo    FieldValueRepository
}

// NewFieldValueUseCase creates the field value use case.
func NewFieldValueUseCase(
	registry *classify.Registry,
	encryptionService cryptoService.EncryptionService,
	fieldValueRepo FieldValueRepository,
) FieldValueUseCase {
	return &fieldValueUseCase{
		registry:          registry,
		encryptionService: encryptionService,
		fieldValueRepo:    fieldValueRepo,
	}
}

// Encrypt seals a plaintext for its field and persists the envelope. An
// update always produces a brand-new envelope with a fresh DEK.
func (f *fieldValueUseCase) Encrypt(
	ctx context.Context,
	entityType, fieldName, recordID string,
	plaintext []byte,
) (*cryptoDomain.FieldValue, error) {
	tier, ok := f.registry.Tier(entityType, fieldName)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "field %s.%s is not protected", entityType, fieldName)
	}

	encCtx := cryptoDomain.EncryptionContext{
		EntityType: entityType,
		FieldName:  fieldName,
		RecordID:   recordID,
	}

	value, err := f.encryptionService.Encrypt(ctx, tier, plaintext, encCtx)
	if err != nil {
		return nil, err
	}

	fv := cryptoDomain.NewFieldValue(value)
	if err := f.fieldValueRepo.Upsert(ctx, fv); err != nil {
		return nil, err
	}
	return fv, nil
}

// Decrypt loads and opens the envelope for one field of one record. The
// expected context is rebuilt from the caller's coordinates, never trusted
// from storage.
func (f *fieldValueUseCase) Decrypt(
	ctx context.Context,
	entityType, fieldName, recordID string,
) ([]byte, error) {
	fv, err := f.fieldValueRepo.Get(ctx, entityType, fieldName, recordID)
	if err != nil {
		return nil, err
	}

	expected := cryptoDomain.EncryptionContext{
		EntityType: entityType,
		FieldName:  fieldName,
		RecordID:   recordID,
	}
	return f.encryptionService.Decrypt(ctx, fv.Value(), expected)
}

// Delete removes the envelope for one field of one record.
func (f *fieldValueUseCase) Delete(ctx context.Context, entityType, fieldName, recordID string) error {
	return f.fieldValueRepo.Delete(ctx, entityType, fieldName, recordID)
}
