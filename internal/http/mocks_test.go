package http

import (
	"context"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoUsecase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"

	"github.com/google/uuid"
)

type mockKeyLifecycleUseCase struct {
	mock.Mock
}

func (m *mockKeyLifecycleUseCase) Init(ctx context.Context, chain *cryptoDomain.MasterKeyChain, alg cryptoDomain.Algorithm) error {
	args := m.Called(ctx, chain, alg)
	return args.Error(0)
}

func (m *mockKeyLifecycleUseCase) Load(ctx context.Context, chain *cryptoDomain.MasterKeyChain) (*cryptoDomain.KekRing, error) {
	args := m.Called(ctx, chain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KekRing), args.Error(1)
}

func (m *mockKeyLifecycleUseCase) Rotate(ctx context.Context, chain *cryptoDomain.MasterKeyChain, tier classify.Tier, alg cryptoDomain.Algorithm) error {
	args := m.Called(ctx, chain, tier, alg)
	return args.Error(0)
}

func (m *mockKeyLifecycleUseCase) Status(ctx context.Context, tier classify.Tier) (*cryptoUsecase.RotationStatus, error) {
	args := m.Called(ctx, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoUsecase.RotationStatus), args.Error(1)
}

func (m *mockKeyLifecycleUseCase) Retire(ctx context.Context, tier classify.Tier) error {
	args := m.Called(ctx, tier)
	return args.Error(0)
}

type mockRecorderUseCase struct {
	mock.Mock
}

func (m *mockRecorderUseCase) Record(ctx context.Context, entries []*auditDomain.AuditEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *mockRecorderUseCase) List(
	ctx context.Context,
	objectName, recordID string,
	operationID uuid.UUID,
	offset, limit int,
) ([]*auditDomain.AuditEntry, error) {
	args := m.Called(ctx, objectName, recordID, operationID, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.AuditEntry), args.Error(1)
}

type mockVerifierUseCase struct {
	mock.Mock
}

func (m *mockVerifierUseCase) Verify(ctx context.Context, batchSize int) (*auditUsecase.VerifyReport, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditUsecase.VerifyReport), args.Error(1)
}
