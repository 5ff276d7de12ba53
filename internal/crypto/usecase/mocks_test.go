package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// stubTxManager runs the transaction function directly; repository mocks
// record the calls made inside it.
type stubTxManager struct {
	beginErr error
}

func (s *stubTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	return fn(ctx)
}

type mockKekRepository struct {
	mock.Mock
}

func (m *mockKekRepository) Create(ctx context.Context, kek *cryptoDomain.Kek) error {
	args := m.Called(ctx, kek)
	return args.Error(0)
}

func (m *mockKekRepository) UpdateState(ctx context.Context, kek *cryptoDomain.Kek) error {
	args := m.Called(ctx, kek)
	return args.Error(0)
}

func (m *mockKekRepository) List(ctx context.Context) ([]*cryptoDomain.Kek, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.Kek), args.Error(1)
}

func (m *mockKekRepository) ListByTier(ctx context.Context, tier classify.Tier) ([]*cryptoDomain.Kek, error) {
	args := m.Called(ctx, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.Kek), args.Error(1)
}

func (m *mockKekRepository) Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.Kek), args.Error(1)
}

type mockFieldValueRepository struct {
	mock.Mock
}

func (m *mockFieldValueRepository) Upsert(ctx context.Context, fv *cryptoDomain.FieldValue) error {
	args := m.Called(ctx, fv)
	return args.Error(0)
}

func (m *mockFieldValueRepository) Get(
	ctx context.Context, entityType, fieldName, recordID string,
) (*cryptoDomain.FieldValue, error) {
	args := m.Called(ctx, entityType, fieldName, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.FieldValue), args.Error(1)
}

func (m *mockFieldValueRepository) Delete(ctx context.Context, entityType, fieldName, recordID string) error {
	args := m.Called(ctx, entityType, fieldName, recordID)
	return args.Error(0)
}

func (m *mockFieldValueRepository) ListByKeyID(
	ctx context.Context, keyID, afterID uuid.UUID, limit int,
) ([]*cryptoDomain.FieldValue, error) {
	args := m.Called(ctx, keyID, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cryptoDomain.FieldValue), args.Error(1)
}

func (m *mockFieldValueRepository) CountByKeyID(ctx context.Context, keyID uuid.UUID) (uint64, error) {
	args := m.Called(ctx, keyID)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockFieldValueRepository) UpdateWrap(
	ctx context.Context, id, oldKeyID, newKeyID uuid.UUID, wrappedDek, dekNonce []byte,
) (bool, error) {
	args := m.Called(ctx, id, oldKeyID, newKeyID, wrappedDek, dekNonce)
	return args.Bool(0), args.Error(1)
}

type mockSweepRepository struct {
	mock.Mock
}

func (m *mockSweepRepository) Save(ctx context.Context, cp *cryptoDomain.SweepCheckpoint) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *mockSweepRepository) Get(ctx context.Context, tier classify.Tier) (*cryptoDomain.SweepCheckpoint, error) {
	args := m.Called(ctx, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.SweepCheckpoint), args.Error(1)
}

func (m *mockSweepRepository) Delete(ctx context.Context, tier classify.Tier) error {
	args := m.Called(ctx, tier)
	return args.Error(0)
}

type mockKekManager struct {
	mock.Mock
}

func (m *mockKekManager) CreateKek(
	masterKey *cryptoDomain.MasterKey,
	tier classify.Tier,
	alg cryptoDomain.Algorithm,
	version uint,
) (cryptoDomain.Kek, error) {
	args := m.Called(masterKey, tier, alg, version)
	return args.Get(0).(cryptoDomain.Kek), args.Error(1)
}

func (m *mockKekManager) UnwrapKek(kek *cryptoDomain.Kek, masterKey *cryptoDomain.MasterKey) ([]byte, error) {
	args := m.Called(kek, masterKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockEncryptionService struct {
	mock.Mock
}

func (m *mockEncryptionService) Encrypt(
	ctx context.Context,
	tier classify.Tier,
	plaintext []byte,
	encCtx cryptoDomain.EncryptionContext,
) (*cryptoDomain.EncryptedValue, error) {
	args := m.Called(ctx, tier, plaintext, encCtx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.EncryptedValue), args.Error(1)
}

func (m *mockEncryptionService) Decrypt(
	ctx context.Context,
	value *cryptoDomain.EncryptedValue,
	expectedCtx cryptoDomain.EncryptionContext,
) ([]byte, error) {
	args := m.Called(ctx, value, expectedCtx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockKeyService struct {
	mock.Mock
}

func (m *mockKeyService) GenerateDataKey(
	ctx context.Context, keyID uuid.UUID, aad []byte,
) (*cryptoDomain.DataKey, error) {
	args := m.Called(ctx, keyID, aad)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.DataKey), args.Error(1)
}

func (m *mockKeyService) UnwrapDataKey(
	ctx context.Context, keyID uuid.UUID, wrapped, nonce, aad []byte,
) ([]byte, error) {
	args := m.Called(ctx, keyID, wrapped, nonce, aad)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKeyService) RewrapDataKey(
	ctx context.Context,
	oldKeyID, newKeyID uuid.UUID,
	wrapped, nonce, aad []byte,
) ([]byte, []byte, error) {
	args := m.Called(ctx, oldKeyID, newKeyID, wrapped, nonce, aad)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).([]byte), args.Error(2)
}

type mockKeyLifecycleUseCase struct {
	mock.Mock
}

func (m *mockKeyLifecycleUseCase) Init(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	alg cryptoDomain.Algorithm,
) error {
	args := m.Called(ctx, masterKeyChain, alg)
	return args.Error(0)
}

func (m *mockKeyLifecycleUseCase) Load(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
) (*cryptoDomain.KekRing, error) {
	args := m.Called(ctx, masterKeyChain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KekRing), args.Error(1)
}

func (m *mockKeyLifecycleUseCase) Rotate(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	tier classify.Tier,
	alg cryptoDomain.Algorithm,
) error {
	args := m.Called(ctx, masterKeyChain, tier, alg)
	return args.Error(0)
}

func (m *mockKeyLifecycleUseCase) Status(ctx context.Context, tier classify.Tier) (*RotationStatus, error) {
	args := m.Called(ctx, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RotationStatus), args.Error(1)
}

func (m *mockKeyLifecycleUseCase) Retire(ctx context.Context, tier classify.Tier) error {
	args := m.Called(ctx, tier)
	return args.Error(0)
}
