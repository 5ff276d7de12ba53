package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoUsecase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"
	"github.com/estatekit/fieldcrypt/internal/httputil"
)

// RotationHandler handles HTTP requests for key lifecycle operations.
type RotationHandler struct {
	keyLifecycle   cryptoUsecase.KeyLifecycleUseCase
	masterKeyChain *cryptoDomain.MasterKeyChain
	algorithm      cryptoDomain.Algorithm
	logger         *slog.Logger
}

// NewRotationHandler creates a new rotation handler with required dependencies.
func NewRotationHandler(
	keyLifecycle cryptoUsecase.KeyLifecycleUseCase,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	algorithm cryptoDomain.Algorithm,
	logger *slog.Logger,
) *RotationHandler {
	return &RotationHandler{
		keyLifecycle:   keyLifecycle,
		masterKeyChain: masterKeyChain,
		algorithm:      algorithm,
		logger:         logger,
	}
}

// tierFromPath parses the :tier path parameter.
func (h *RotationHandler) tierFromPath(c *gin.Context) (classify.Tier, bool) {
	tier, err := classify.ParseTier(c.Param("tier"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return "", false
	}
	return tier, true
}

// RotateHandler starts an online rotation for one tier.
// POST /v1/tiers/:tier/rotate
// Returns 202 Accepted with the tier's rotation status: the re-wrap sweep
// drains the old key in the background after this call returns.
func (h *RotationHandler) RotateHandler(c *gin.Context) {
	tier, ok := h.tierFromPath(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.keyLifecycle.Rotate(ctx, h.masterKeyChain, tier, h.algorithm); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status, err := h.keyLifecycle.Status(ctx, tier)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, status)
}

// RetireHandler completes a drained rotation for one tier.
// POST /v1/tiers/:tier/retire
func (h *RotationHandler) RetireHandler(c *gin.Context) {
	tier, ok := h.tierFromPath(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.keyLifecycle.Retire(ctx, tier); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status, err := h.keyLifecycle.Status(ctx, tier)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, status)
}

// StatusHandler reports where one tier stands in its key lifecycle.
// GET /v1/tiers/:tier/rotation-status
func (h *RotationHandler) StatusHandler(c *gin.Context) {
	tier, ok := h.tierFromPath(c)
	if !ok {
		return
	}

	status, err := h.keyLifecycle.Status(c.Request.Context(), tier)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, status)
}
