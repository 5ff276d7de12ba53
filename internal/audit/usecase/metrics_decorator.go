package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	"github.com/estatekit/fieldcrypt/internal/metrics"
)

// recorderUseCaseWithMetrics decorates RecorderUseCase with metrics instrumentation.
type recorderUseCaseWithMetrics struct {
	next    RecorderUseCase
	metrics metrics.BusinessMetrics
}

// NewRecorderUseCaseWithMetrics wraps a RecorderUseCase with metrics recording.
func NewRecorderUseCaseWithMetrics(useCase RecorderUseCase, m metrics.BusinessMetrics) RecorderUseCase {
	return &recorderUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Record records metrics for audit entry persistence.
func (r *recorderUseCaseWithMetrics) Record(ctx context.Context, entries []*auditDomain.AuditEntry) error {
	start := time.Now()
	err := r.next.Record(ctx, entries)

	status := "success"
	if err != nil {
		status = "error"
	}

	r.metrics.RecordOperation(ctx, "audit", "audit_record", status)
	r.metrics.RecordDuration(ctx, "audit", "audit_record", time.Since(start), status)

	return err
}

// List records metrics for audit trail queries.
func (r *recorderUseCaseWithMetrics) List(
	ctx context.Context,
	objectName, recordID string,
	operationID uuid.UUID,
	offset, limit int,
) ([]*auditDomain.AuditEntry, error) {
	start := time.Now()
	entries, err := r.next.List(ctx, objectName, recordID, operationID, offset, limit)

	status := "success"
	if err != nil {
		status = "error"
	}

	r.metrics.RecordOperation(ctx, "audit", "audit_list", status)
	r.metrics.RecordDuration(ctx, "audit", "audit_list", time.Since(start), status)

	return entries, err
}

// verifierUseCaseWithMetrics decorates VerifierUseCase with metrics instrumentation.
type verifierUseCaseWithMetrics struct {
	next    VerifierUseCase
	metrics metrics.BusinessMetrics
}

// NewVerifierUseCaseWithMetrics wraps a VerifierUseCase with metrics recording.
func NewVerifierUseCaseWithMetrics(useCase VerifierUseCase, m metrics.BusinessMetrics) VerifierUseCase {
	return &verifierUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Verify records metrics for full audit trail verification runs.
func (v *verifierUseCaseWithMetrics) Verify(ctx context.Context, batchSize int) (*VerifyReport, error) {
	start := time.Now()
	report, err := v.next.Verify(ctx, batchSize)

	status := "success"
	if err != nil {
		status = "error"
	}

	v.metrics.RecordOperation(ctx, "audit", "audit_verify", status)
	v.metrics.RecordDuration(ctx, "audit", "audit_verify", time.Since(start), status)

	return report, err
}
