package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	"github.com/estatekit/fieldcrypt/internal/http/dto"
	"github.com/estatekit/fieldcrypt/internal/httputil"
	customValidation "github.com/estatekit/fieldcrypt/internal/validation"
)

// AuditEntryHandler handles HTTP requests for querying and verifying the
// audit trail.
type AuditEntryHandler struct {
	recorder auditUsecase.RecorderUseCase
	verifier auditUsecase.VerifierUseCase
	logger   *slog.Logger
}

// NewAuditEntryHandler creates a new audit entry handler with required
// dependencies.
func NewAuditEntryHandler(
	recorder auditUsecase.RecorderUseCase,
	verifier auditUsecase.VerifierUseCase,
	logger *slog.Logger,
) *AuditEntryHandler {
	return &AuditEntryHandler{
		recorder: recorder,
		verifier: verifier,
		logger:   logger,
	}
}

// ListHandler retrieves audit entries, optionally filtered by object name,
// record id, and operation id.
// GET /v1/audit-entries?object_name=X&record_id=Y&operation_id=Z&offset=N&limit=M
func (h *AuditEntryHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.ListAuditEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	operationID := uuid.Nil
	if req.OperationID != "" {
		operationID, err = uuid.Parse(req.OperationID)
		if err != nil {
			httputil.HandleValidationErrorGin(
				c,
				fmt.Errorf("invalid operation_id: %w", err),
				h.logger,
			)
			return
		}
	}

	entries, err := h.recorder.List(
		c.Request.Context(),
		req.ObjectName,
		req.RecordID,
		operationID,
		offset,
		limit,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAuditEntriesToListResponse(entries))
}

// VerifyHandler walks the audit trail and checks every entry's signature.
// POST /v1/audit-entries/verify
// The optional JSON body selects the page size. Returns 200 OK with a
// report; a report listing invalid entries is still a successful run.
func (h *AuditEntryHandler) VerifyHandler(c *gin.Context) {
	var req dto.VerifyAuditEntriesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.HandleValidationErrorGin(c, err, h.logger)
			return
		}

		if err := req.Validate(); err != nil {
			httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
			return
		}
	}

	report, err := h.verifier.Verify(c.Request.Context(), req.BatchSize)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, report)
}
