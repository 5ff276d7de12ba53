package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	auditService "github.com/estatekit/fieldcrypt/internal/audit/service"
	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// recorderUseCase signs entries with a key derived from the Critical tier's
// Active KEK and appends them through the repository. Failures are reported
// as ErrAuditFailure and logged operationally; the compliance table itself is
// never used to report its own failures.
type recorderUseCase struct {
	ring      *cryptoDomain.KekRing
	signer    auditService.Signer
	auditRepo AuditEntryRepository
	logger    *slog.Logger
}

// NewRecorderUseCase creates the audit recorder.
func NewRecorderUseCase(
	ring *cryptoDomain.KekRing,
	signer auditService.Signer,
	auditRepo AuditEntryRepository,
	logger *slog.Logger,
) RecorderUseCase {
	return &recorderUseCase{
		ring:      ring,
		signer:    signer,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Record signs and appends the entries of one commit inside the caller's
// transaction. Entry IDs and timestamps are assigned here; the caller only
// provides the change content.
func (r *recorderUseCase) Record(ctx context.Context, entries []*auditDomain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	signingKek, err := r.ring.Active(classify.TierCritical)
	if err != nil {
		r.logger.Error("audit signing key unavailable", slog.Any("error", err))
		return apperrors.Wrap(apperrors.ErrAuditFailure, "no signing key available")
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.Must(uuid.NewV7())
		}
		entry.CreatedAt = now
		entry.SigningKeyID = signingKek.ID

		signature, err := r.signer.Sign(signingKek.Key, entry)
		if err != nil {
			r.logger.Error("failed to sign audit entry",
				slog.String("object_name", entry.ObjectName),
				slog.String("column_name", entry.ColumnName),
				slog.Any("error", err),
			)
			return apperrors.Wrapf(
				apperrors.ErrAuditFailure,
				"signing entry for %s.%s", entry.ObjectName, entry.ColumnName,
			)
		}
		entry.Signature = signature

		if err := r.auditRepo.Create(ctx, entry); err != nil {
			r.logger.Error("failed to persist audit entry",
				slog.String("object_name", entry.ObjectName),
				slog.String("column_name", entry.ColumnName),
				slog.Any("error", err),
			)
			return apperrors.Wrapf(
				apperrors.ErrAuditFailure,
				"persisting entry for %s.%s", entry.ObjectName, entry.ColumnName,
			)
		}
	}

	return nil
}

// List retrieves entries for operator queries.
func (r *recorderUseCase) List(
	ctx context.Context,
	objectName, recordID string,
	operationID uuid.UUID,
	offset, limit int,
) ([]*auditDomain.AuditEntry, error) {
	entries, err := r.auditRepo.List(ctx, objectName, recordID, operationID, offset, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit entries")
	}
	return entries, nil
}
