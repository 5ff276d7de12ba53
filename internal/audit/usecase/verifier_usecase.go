package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	auditService "github.com/estatekit/fieldcrypt/internal/audit/service"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// verifierUseCase re-checks every persisted audit signature against the KEK
// ring. Retired keys stay resolvable by ID, so entries signed before a
// rotation still verify.
type verifierUseCase struct {
	ring      *cryptoDomain.KekRing
	signer    auditService.Signer
	auditRepo AuditEntryRepository
	logger    *slog.Logger
}

// NewVerifierUseCase creates the audit signature verifier.
func NewVerifierUseCase(
	ring *cryptoDomain.KekRing,
	signer auditService.Signer,
	auditRepo AuditEntryRepository,
	logger *slog.Logger,
) VerifierUseCase {
	return &verifierUseCase{
		ring:      ring,
		signer:    signer,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Verify walks the audit trail in batches and reports entries whose
// signature fails or whose signing key is unknown.
func (v *verifierUseCase) Verify(ctx context.Context, batchSize int) (*VerifyReport, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	report := &VerifyReport{}
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := v.auditRepo.List(ctx, "", "", uuid.Nil, offset, batchSize)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to page audit entries")
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			report.Checked++
			kek, ok := v.ring.Get(entry.SigningKeyID)
			if !ok {
				report.UnknownKey = append(report.UnknownKey, entry.ID)
				v.logger.Warn("audit entry signed under unknown key",
					slog.String("entry_id", entry.ID.String()),
					slog.String("signing_key_id", entry.SigningKeyID.String()),
				)
				continue
			}

			if err := v.signer.Verify(kek.Key, entry); err != nil {
				if !apperrors.Is(err, auditDomain.ErrSignatureInvalid) {
					return nil, err
				}
				report.Invalid = append(report.Invalid, entry.ID)
				v.logger.Warn("audit entry failed signature verification",
					slog.String("entry_id", entry.ID.String()),
					slog.String("object_name", entry.ObjectName),
				)
			}
		}

		if len(entries) < batchSize {
			break
		}
	}

	return report, nil
}
