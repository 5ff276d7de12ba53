package app

import (
	"fmt"

	auditRepository "github.com/estatekit/fieldcrypt/internal/audit/repository"
	auditService "github.com/estatekit/fieldcrypt/internal/audit/service"
	auditUsecase "github.com/estatekit/fieldcrypt/internal/audit/usecase"
	"github.com/estatekit/fieldcrypt/internal/interceptor"
)

// AuditEntryRepository returns the append-only audit entry repository.
func (c *Container) AuditEntryRepository() (auditUsecase.AuditEntryRepository, error) {
	var err error
	c.auditRepositoryInit.Do(func() {
		c.auditRepository, err = c.initAuditEntryRepository()
		if err != nil {
			c.initErrors["auditRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditRepository"]; exists {
		return nil, storedErr
	}
	return c.auditRepository, nil
}

// RecorderUseCase returns the audit trail recorder.
func (c *Container) RecorderUseCase() (auditUsecase.RecorderUseCase, error) {
	var err error
	c.recorderUseCaseInit.Do(func() {
		c.recorderUseCase, err = c.initRecorderUseCase()
		if err != nil {
			c.initErrors["recorderUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recorderUseCase"]; exists {
		return nil, storedErr
	}
	return c.recorderUseCase, nil
}

// VerifierUseCase returns the audit trail signature verifier.
func (c *Container) VerifierUseCase() (auditUsecase.VerifierUseCase, error) {
	var err error
	c.verifierUseCaseInit.Do(func() {
		c.verifierUseCase, err = c.initVerifierUseCase()
		if err != nil {
			c.initErrors["verifierUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["verifierUseCase"]; exists {
		return nil, storedErr
	}
	return c.verifierUseCase, nil
}

// PersistenceInterceptor returns the persistence interceptor that encrypts
// protected fields and records audit entries on commit.
func (c *Container) PersistenceInterceptor() (*interceptor.Interceptor, error) {
	var err error
	c.persistenceInterceptorInit.Do(func() {
		c.persistenceInterceptor, err = c.initPersistenceInterceptor()
		if err != nil {
			c.initErrors["persistenceInterceptor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["persistenceInterceptor"]; exists {
		return nil, storedErr
	}
	return c.persistenceInterceptor, nil
}

// initAuditEntryRepository creates the audit entry repository based on the
// database driver.
func (c *Container) initAuditEntryRepository() (auditUsecase.AuditEntryRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for audit repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return auditRepository.NewPostgreSQLAuditEntryRepository(db), nil
	case "mysql":
		return auditRepository.NewMySQLAuditEntryRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initRecorderUseCase creates the audit recorder with all its dependencies.
func (c *Container) initRecorderUseCase() (auditUsecase.RecorderUseCase, error) {
	ring, err := c.KekRing()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek ring for recorder use case: %w", err)
	}

	auditRepo, err := c.AuditEntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for recorder use case: %w", err)
	}

	useCase := auditUsecase.NewRecorderUseCase(ring, auditService.NewSigner(), auditRepo, c.Logger())

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for recorder use case: %w", err)
	}

	return auditUsecase.NewRecorderUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initVerifierUseCase creates the audit trail verifier.
func (c *Container) initVerifierUseCase() (auditUsecase.VerifierUseCase, error) {
	ring, err := c.KekRing()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek ring for verifier use case: %w", err)
	}

	auditRepo, err := c.AuditEntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for verifier use case: %w", err)
	}

	useCase := auditUsecase.NewVerifierUseCase(ring, auditService.NewSigner(), auditRepo, c.Logger())

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for verifier use case: %w", err)
	}

	return auditUsecase.NewVerifierUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initPersistenceInterceptor creates the persistence interceptor.
func (c *Container) initPersistenceInterceptor() (*interceptor.Interceptor, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry for interceptor: %w", err)
	}

	encryptionService, err := c.EncryptionService()
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption service for interceptor: %w", err)
	}

	recorder, err := c.RecorderUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get recorder use case for interceptor: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for interceptor: %w", err)
	}

	return interceptor.New(registry, encryptionService, recorder, txManager, c.Logger()), nil
}
