// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	"github.com/estatekit/fieldcrypt/internal/classify"
	"github.com/estatekit/fieldcrypt/internal/config"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
	cryptoUseCase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"
	"github.com/estatekit/fieldcrypt/internal/database"
	"github.com/estatekit/fieldcrypt/internal/http"
	"github.com/estatekit/fieldcrypt/internal/interceptor"
	"github.com/estatekit/fieldcrypt/internal/metrics"
)

// Container holds all application dependencies and provides methods to access
// them. It follows the lazy initialization pattern - components are created on
// first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger *slog.Logger
	db     *sql.DB

	// Managers
	txManager database.TxManager

	// Observability
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Classification
	registry *classify.Registry

	// Crypto services
	kmsService        cryptoService.KMSService
	masterKeyChain    *cryptoDomain.MasterKeyChain
	aeadManager       cryptoService.AEADManager
	kekManager        cryptoService.KekManager
	kekRing           *cryptoDomain.KekRing
	keyService        cryptoService.KeyService
	encryptionService cryptoService.EncryptionService

	// Repositories
	kekRepository        cryptoUseCase.KekRepository
	fieldValueRepository cryptoUseCase.FieldValueRepository
	sweepRepository      cryptoUseCase.SweepRepository
	auditRepository      auditUsecase.AuditEntryRepository

	// Use Cases
	keyLifecycleUseCase cryptoUseCase.KeyLifecycleUseCase
	fieldValueUseCase   cryptoUseCase.FieldValueUseCase
	rewrapSweepUseCase  cryptoUseCase.RewrapSweepUseCase
	schedulerUseCase    cryptoUseCase.RotationSchedulerUseCase
	recorderUseCase     auditUsecase.RecorderUseCase
	verifierUseCase     auditUsecase.VerifierUseCase

	// Interceptor
	persistenceInterceptor *interceptor.Interceptor

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                         sync.Mutex
	loggerInit                 sync.Once
	dbInit                     sync.Once
	txManagerInit              sync.Once
	metricsProviderInit        sync.Once
	businessMetricsInit        sync.Once
	registryInit               sync.Once
	kmsServiceInit             sync.Once
	masterKeyChainInit         sync.Once
	aeadManagerInit            sync.Once
	kekManagerInit             sync.Once
	kekRingInit                sync.Once
	keyServiceInit             sync.Once
	encryptionServiceInit      sync.Once
	kekRepositoryInit          sync.Once
	fieldValueRepositoryInit   sync.Once
	sweepRepositoryInit        sync.Once
	auditRepositoryInit        sync.Once
	keyLifecycleUseCaseInit    sync.Once
	fieldValueUseCaseInit      sync.Once
	rewrapSweepUseCaseInit     sync.Once
	schedulerUseCaseInit       sync.Once
	recorderUseCaseInit        sync.Once
	verifierUseCaseInit        sync.Once
	persistenceInterceptorInit sync.Once
	httpServerInit             sync.Once
	metricsServerInit          sync.Once
	initErrors                 map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the Prometheus metrics provider, or nil when
// metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op recorder is
// returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the operator API server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server instance, or nil when metrics are
// disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources. It should be called
// when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.kekRing != nil {
		c.kekRing.Close()
	}

	if c.masterKeyChain != nil {
		c.masterKeyChain.Close()
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initHTTPServer creates the operator API server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	keyLifecycle, err := c.KeyLifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get key lifecycle use case for http server: %w", err)
	}

	masterKeyChain, err := c.MasterKeyChain()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key chain for http server: %w", err)
	}

	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.EncryptionAlgorithm)
	if err != nil {
		return nil, err
	}

	recorder, err := c.RecorderUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get recorder use case for http server: %w", err)
	}

	verifier, err := c.VerifierUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get verifier use case for http server: %w", err)
	}

	routerConfig := http.RouterConfig{
		KeyLifecycle:      keyLifecycle,
		MasterKeyChain:    masterKeyChain,
		Algorithm:         algorithm,
		Recorder:          recorder,
		Verifier:          verifier,
		OperatorTokenHash: c.config.OperatorTokenHash,
		CORSEnabled:       c.config.CORSEnabled,
		CORSAllowOrigins:  c.config.CORSAllowOrigins,
		MetricsNamespace:  c.config.MetricsNamespace,
	}

	if provider, err := c.MetricsProvider(); err == nil && provider != nil {
		routerConfig.MeterProvider = provider.MeterProvider()
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, logger)
	server.SetupRouter(routerConfig)

	return server, nil
}

// initMetricsServer creates the metrics server.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}

	return http.NewMetricsServer(
		c.config.ServerHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
	), nil
}
