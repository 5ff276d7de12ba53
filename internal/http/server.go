// Package http provides the operator HTTP server and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoUsecase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"
	"github.com/estatekit/fieldcrypt/internal/metrics"
)

// Server represents the operator HTTP server.
type Server struct {
	db     *sql.DB
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server. Routes are registered separately with
// SetupRouter.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// RouterConfig carries the dependencies of the operator API routes.
type RouterConfig struct {
	KeyLifecycle      cryptoUsecase.KeyLifecycleUseCase
	MasterKeyChain    *cryptoDomain.MasterKeyChain
	Algorithm         cryptoDomain.Algorithm
	Recorder          auditUsecase.RecorderUseCase
	Verifier          auditUsecase.VerifierUseCase
	OperatorTokenHash string
	CORSEnabled       bool
	CORSAllowOrigins  string
	MeterProvider     metric.MeterProvider
	MetricsNamespace  string
}

// SetupRouter builds the gin router: health endpoints are open, every /v1
// route sits behind operator authentication.
func (s *Server) SetupRouter(cfg RouterConfig) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if cfg.MeterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(cfg.MeterProvider, cfg.MetricsNamespace))
	}

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	rotationHandler := NewRotationHandler(cfg.KeyLifecycle, cfg.MasterKeyChain, cfg.Algorithm, s.logger)
	auditEntryHandler := NewAuditEntryHandler(cfg.Recorder, cfg.Verifier, s.logger)

	v1 := router.Group("/v1", OperatorAuthMiddleware(cfg.OperatorTokenHash, s.logger))
	{
		v1.POST("/tiers/:tier/rotate", rotationHandler.RotateHandler)
		v1.POST("/tiers/:tier/retire", rotationHandler.RetireHandler)
		v1.GET("/tiers/:tier/rotation-status", rotationHandler.StatusHandler)
		v1.GET("/audit-entries", auditEntryHandler.ListHandler)
		v1.POST("/audit-entries/verify", auditEntryHandler.VerifyHandler)
	}

	s.router = router
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can reach its dependencies.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}

	ready := true
	if s.db == nil {
		components["database"] = "error"
		ready = false
	} else if err := s.db.PingContext(c.Request.Context()); err != nil {
		s.logger.Warn("readiness check failed", slog.String("component", "database"), slog.Any("error", err))
		components["database"] = "error"
		ready = false
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}

// GetHandler returns the configured router, for mounting in tests.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
