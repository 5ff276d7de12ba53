package usecase

import (
	"context"
	"time"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	"github.com/estatekit/fieldcrypt/internal/metrics"
)

// fieldValueUseCaseWithMetrics decorates FieldValueUseCase with metrics instrumentation.
type fieldValueUseCaseWithMetrics struct {
	next    FieldValueUseCase
	metrics metrics.BusinessMetrics
}

// NewFieldValueUseCaseWithMetrics wraps a FieldValueUseCase with metrics recording.
func NewFieldValueUseCaseWithMetrics(useCase FieldValueUseCase, m metrics.BusinessMetrics) FieldValueUseCase {
	return &fieldValueUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Encrypt records metrics for field encryption operations.
func (f *fieldValueUseCaseWithMetrics) Encrypt(
	ctx context.Context,
	entityType, fieldName, recordID string,
	plaintext []byte,
) (*cryptoDomain.FieldValue, error) {
	start := time.Now()
	fv, err := f.next.Encrypt(ctx, entityType, fieldName, recordID, plaintext)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "fieldcrypt", "field_encrypt", status)
	f.metrics.RecordDuration(ctx, "fieldcrypt", "field_encrypt", time.Since(start), status)

	return fv, err
}

// Decrypt records metrics for field decryption operations.
func (f *fieldValueUseCaseWithMetrics) Decrypt(
	ctx context.Context,
	entityType, fieldName, recordID string,
) ([]byte, error) {
	start := time.Now()
	plaintext, err := f.next.Decrypt(ctx, entityType, fieldName, recordID)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "fieldcrypt", "field_decrypt", status)
	f.metrics.RecordDuration(ctx, "fieldcrypt", "field_decrypt", time.Since(start), status)

	return plaintext, err
}

// Delete records metrics for field deletion operations.
func (f *fieldValueUseCaseWithMetrics) Delete(
	ctx context.Context,
	entityType, fieldName, recordID string,
) error {
	start := time.Now()
	err := f.next.Delete(ctx, entityType, fieldName, recordID)

	status := "success"
	if err != nil {
		status = "error"
	}

	f.metrics.RecordOperation(ctx, "fieldcrypt", "field_delete", status)
	f.metrics.RecordDuration(ctx, "fieldcrypt", "field_delete", time.Since(start), status)

	return err
}

// keyLifecycleUseCaseWithMetrics decorates KeyLifecycleUseCase with metrics instrumentation.
type keyLifecycleUseCaseWithMetrics struct {
	next    KeyLifecycleUseCase
	metrics metrics.BusinessMetrics
}

// NewKeyLifecycleUseCaseWithMetrics wraps a KeyLifecycleUseCase with metrics recording.
func NewKeyLifecycleUseCaseWithMetrics(useCase KeyLifecycleUseCase, m metrics.BusinessMetrics) KeyLifecycleUseCase {
	return &keyLifecycleUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Init records metrics for KEK initialization.
func (k *keyLifecycleUseCaseWithMetrics) Init(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	alg cryptoDomain.Algorithm,
) error {
	start := time.Now()
	err := k.next.Init(ctx, masterKeyChain, alg)

	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, "keys", "kek_init", status)
	k.metrics.RecordDuration(ctx, "keys", "kek_init", time.Since(start), status)

	return err
}

// Load passes through without instrumentation; it runs once at startup.
func (k *keyLifecycleUseCaseWithMetrics) Load(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
) (*cryptoDomain.KekRing, error) {
	return k.next.Load(ctx, masterKeyChain)
}

// Rotate records metrics for rotation starts.
func (k *keyLifecycleUseCaseWithMetrics) Rotate(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	tier classify.Tier,
	alg cryptoDomain.Algorithm,
) error {
	start := time.Now()
	err := k.next.Rotate(ctx, masterKeyChain, tier, alg)

	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, "keys", "kek_rotate", status)
	k.metrics.RecordDuration(ctx, "keys", "kek_rotate", time.Since(start), status)

	return err
}

// Status records metrics for rotation status queries.
func (k *keyLifecycleUseCaseWithMetrics) Status(
	ctx context.Context,
	tier classify.Tier,
) (*RotationStatus, error) {
	start := time.Now()
	rs, err := k.next.Status(ctx, tier)

	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, "keys", "rotation_status", status)
	k.metrics.RecordDuration(ctx, "keys", "rotation_status", time.Since(start), status)

	return rs, err
}

// Retire records metrics for KEK retirement.
func (k *keyLifecycleUseCaseWithMetrics) Retire(ctx context.Context, tier classify.Tier) error {
	start := time.Now()
	err := k.next.Retire(ctx, tier)

	status := "success"
	if err != nil {
		status = "error"
	}

	k.metrics.RecordOperation(ctx, "keys", "kek_retire", status)
	k.metrics.RecordDuration(ctx, "keys", "kek_retire", time.Since(start), status)

	return err
}
