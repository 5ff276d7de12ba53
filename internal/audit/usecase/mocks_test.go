package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
)

type mockAuditEntryRepository struct {
	mock.Mock
}

func (m *mockAuditEntryRepository) Create(ctx context.Context, entry *auditDomain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditEntryRepository) List(
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

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) Sign(kekKey []byte, entry *auditDomain.AuditEntry) ([]byte, error) {
	args := m.Called(kekKey, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockSigner) Verify(kekKey []byte, entry *auditDomain.AuditEntry) error {
	args := m.Called(kekKey, entry)
	return args.Error(0)
}
