package app

import (
	"context"
	"fmt"
	"time"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoRepository "github.com/estatekit/fieldcrypt/internal/crypto/repository"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
	cryptoUseCase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"
)

// Registry returns the protected-field classification registry parsed from
// configuration.
func (c *Container) Registry() (*classify.Registry, error) {
	var err error
	c.registryInit.Do(func() {
		c.registry, err = c.initRegistry()
		if err != nil {
			c.initErrors["registry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["registry"]; exists {
		return nil, storedErr
	}
	return c.registry, nil
}

// KMSService returns the KMS service for master-key protection.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// MasterKeyChain returns the master key chain loaded from the environment,
// unwrapped through the configured KMS when one is set.
func (c *Container) MasterKeyChain() (*cryptoDomain.MasterKeyChain, error) {
	var err error
	c.masterKeyChainInit.Do(func() {
		c.masterKeyChain, err = c.initMasterKeyChain()
		if err != nil {
			c.initErrors["masterKeyChain"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["masterKeyChain"]; exists {
		return nil, storedErr
	}
	return c.masterKeyChain, nil
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KekManager returns the KEK manager service.
func (c *Container) KekManager() cryptoService.KekManager {
	c.kekManagerInit.Do(func() {
		c.kekManager = cryptoService.NewKekManager(c.AEADManager())
	})
	return c.kekManager
}

// KekRepository returns the KEK repository.
func (c *Container) KekRepository() (cryptoUseCase.KekRepository, error) {
	var err error
	c.kekRepositoryInit.Do(func() {
		c.kekRepository, err = c.initKekRepository()
		if err != nil {
			c.initErrors["kekRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kekRepository"]; exists {
		return nil, storedErr
	}
	return c.kekRepository, nil
}

// FieldValueRepository returns the protected field value repository.
func (c *Container) FieldValueRepository() (cryptoUseCase.FieldValueRepository, error) {
	var err error
	c.fieldValueRepositoryInit.Do(func() {
		c.fieldValueRepository, err = c.initFieldValueRepository()
		if err != nil {
			c.initErrors["fieldValueRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["fieldValueRepository"]; exists {
		return nil, storedErr
	}
	return c.fieldValueRepository, nil
}

// SweepRepository returns the re-wrap sweep checkpoint repository.
func (c *Container) SweepRepository() (cryptoUseCase.SweepRepository, error) {
	var err error
	c.sweepRepositoryInit.Do(func() {
		c.sweepRepository, err = c.initSweepRepository()
		if err != nil {
			c.initErrors["sweepRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sweepRepository"]; exists {
		return nil, storedErr
	}
	return c.sweepRepository, nil
}

// KeyLifecycleUseCase returns the KEK lifecycle use case.
func (c *Container) KeyLifecycleUseCase() (cryptoUseCase.KeyLifecycleUseCase, error) {
	var err error
	c.keyLifecycleUseCaseInit.Do(func() {
		c.keyLifecycleUseCase, err = c.initKeyLifecycleUseCase()
		if err != nil {
			c.initErrors["keyLifecycleUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyLifecycleUseCase"]; exists {
		return nil, storedErr
	}
	return c.keyLifecycleUseCase, nil
}

// KekRing returns the in-process KEK ring, loading and unwrapping every
// persisted KEK on first access.
func (c *Container) KekRing() (*cryptoDomain.KekRing, error) {
	var err error
	c.kekRingInit.Do(func() {
		c.kekRing, err = c.initKekRing()
		if err != nil {
			c.initErrors["kekRing"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kekRing"]; exists {
		return nil, storedErr
	}
	return c.kekRing, nil
}

// KeyService returns the resilient key service backed by the KEK ring.
func (c *Container) KeyService() (cryptoService.KeyService, error) {
	var err error
	c.keyServiceInit.Do(func() {
		c.keyService, err = c.initKeyService()
		if err != nil {
			c.initErrors["keyService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyService"]; exists {
		return nil, storedErr
	}
	return c.keyService, nil
}

// EncryptionService returns the envelope encryption service.
func (c *Container) EncryptionService() (cryptoService.EncryptionService, error) {
	var err error
	c.encryptionServiceInit.Do(func() {
		c.encryptionService, err = c.initEncryptionService()
		if err != nil {
			c.initErrors["encryptionService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["encryptionService"]; exists {
		return nil, storedErr
	}
	return c.encryptionService, nil
}

// FieldValueUseCase returns the field value use case.
func (c *Container) FieldValueUseCase() (cryptoUseCase.FieldValueUseCase, error) {
	var err error
	c.fieldValueUseCaseInit.Do(func() {
		c.fieldValueUseCase, err = c.initFieldValueUseCase()
		if err != nil {
			c.initErrors["fieldValueUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["fieldValueUseCase"]; exists {
		return nil, storedErr
	}
	return c.fieldValueUseCase, nil
}

// RewrapSweepUseCase returns the background re-wrap sweep.
func (c *Container) RewrapSweepUseCase() (cryptoUseCase.RewrapSweepUseCase, error) {
	var err error
	c.rewrapSweepUseCaseInit.Do(func() {
		c.rewrapSweepUseCase, err = c.initRewrapSweepUseCase()
		if err != nil {
			c.initErrors["rewrapSweepUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rewrapSweepUseCase"]; exists {
		return nil, storedErr
	}
	return c.rewrapSweepUseCase, nil
}

// RotationSchedulerUseCase returns the age-based rotation scheduler.
func (c *Container) RotationSchedulerUseCase() (cryptoUseCase.RotationSchedulerUseCase, error) {
	var err error
	c.schedulerUseCaseInit.Do(func() {
		c.schedulerUseCase, err = c.initRotationSchedulerUseCase()
		if err != nil {
			c.initErrors["schedulerUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["schedulerUseCase"]; exists {
		return nil, storedErr
	}
	return c.schedulerUseCase, nil
}

// initRegistry parses the protected-field table from configuration.
func (c *Container) initRegistry() (*classify.Registry, error) {
	fields, err := classify.ParseFields(c.config.ProtectedFields)
	if err != nil {
		return nil, fmt.Errorf("failed to parse protected fields: %w", err)
	}

	registry, err := classify.NewRegistry(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build classification registry: %w", err)
	}
	return registry, nil
}

// initMasterKeyChain loads the master key chain, opening a KMS keeper first
// when one is configured. The keeper is only needed while unwrapping and is
// closed before this returns.
func (c *Container) initMasterKeyChain() (*cryptoDomain.MasterKeyChain, error) {
	ctx := context.Background()

	var keeper cryptoDomain.KMSKeeper
	if c.config.KMSKeyURI != "" {
		opened, err := c.KMSService().OpenKeeper(ctx, c.config.KMSKeyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
		}
		keeper = opened
		defer func() {
			if closeErr := keeper.Close(); closeErr != nil {
				c.Logger().Warn("failed to close KMS keeper", "error", closeErr)
			}
		}()
	}

	masterKeyChain, err := cryptoDomain.LoadMasterKeyChain(ctx, keeper)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key chain: %w", err)
	}
	return masterKeyChain, nil
}

// initKekRepository creates the KEK repository based on the database driver.
func (c *Container) initKekRepository() (cryptoUseCase.KekRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for kek repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return cryptoRepository.NewPostgreSQLKekRepository(db), nil
	case "mysql":
		return cryptoRepository.NewMySQLKekRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initFieldValueRepository creates the field value repository based on the
// database driver.
func (c *Container) initFieldValueRepository() (cryptoUseCase.FieldValueRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for field value repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return cryptoRepository.NewPostgreSQLFieldValueRepository(db), nil
	case "mysql":
		return cryptoRepository.NewMySQLFieldValueRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initSweepRepository creates the sweep checkpoint repository based on the
// database driver.
func (c *Container) initSweepRepository() (cryptoUseCase.SweepRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for sweep repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return cryptoRepository.NewPostgreSQLSweepRepository(db), nil
	case "mysql":
		return cryptoRepository.NewMySQLSweepRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initKeyLifecycleUseCase creates the key lifecycle use case with all its
// dependencies.
func (c *Container) initKeyLifecycleUseCase() (cryptoUseCase.KeyLifecycleUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for key lifecycle use case: %w", err)
	}

	kekRepository, err := c.KekRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek repository for key lifecycle use case: %w", err)
	}

	fieldValueRepository, err := c.FieldValueRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get field value repository for key lifecycle use case: %w", err)
	}

	sweepRepository, err := c.SweepRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep repository for key lifecycle use case: %w", err)
	}

	useCase := cryptoUseCase.NewKeyLifecycleUseCase(
		txManager,
		kekRepository,
		fieldValueRepository,
		sweepRepository,
		c.KekManager(),
		c.Logger(),
	)

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for key lifecycle use case: %w", err)
	}

	return cryptoUseCase.NewKeyLifecycleUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initKekRing loads every persisted KEK into the in-process ring.
func (c *Container) initKekRing() (*cryptoDomain.KekRing, error) {
	keyLifecycle, err := c.KeyLifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get key lifecycle use case for kek ring: %w", err)
	}

	masterKeyChain, err := c.MasterKeyChain()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key chain for kek ring: %w", err)
	}

	ring, err := keyLifecycle.Load(context.Background(), masterKeyChain)
	if err != nil {
		return nil, fmt.Errorf("failed to load kek ring: %w", err)
	}
	return ring, nil
}

// initKeyService creates the ring key service wrapped with concurrency
// bounding and retry.
func (c *Container) initKeyService() (cryptoService.KeyService, error) {
	ring, err := c.KekRing()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek ring for key service: %w", err)
	}

	ringKeyService := cryptoService.NewRingKeyService(ring, c.AEADManager())

	policy := cryptoService.RetryPolicy{
		MaxAttempts: c.config.KeyServiceRetryMaxAttempts,
		BaseDelay:   c.config.KeyServiceRetryBaseDelay,
		MaxDelay:    c.config.KeyServiceRetryMaxDelay,
	}

	return cryptoService.NewResilientKeyService(
		ringKeyService,
		int64(c.config.KeyServiceMaxInflight),
		policy,
	), nil
}

// initEncryptionService creates the envelope encryption service.
func (c *Container) initEncryptionService() (cryptoService.EncryptionService, error) {
	ring, err := c.KekRing()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek ring for encryption service: %w", err)
	}

	keyService, err := c.KeyService()
	if err != nil {
		return nil, fmt.Errorf("failed to get key service for encryption service: %w", err)
	}

	return cryptoService.NewEnvelopeEncryptionService(
		ring,
		keyService,
		c.AEADManager(),
		c.config.MaxPlaintextBytes,
	), nil
}

// initFieldValueUseCase creates the field value use case.
func (c *Container) initFieldValueUseCase() (cryptoUseCase.FieldValueUseCase, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry for field value use case: %w", err)
	}

	encryptionService, err := c.EncryptionService()
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption service for field value use case: %w", err)
	}

	fieldValueRepository, err := c.FieldValueRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get field value repository for field value use case: %w", err)
	}

	useCase := cryptoUseCase.NewFieldValueUseCase(registry, encryptionService, fieldValueRepository)

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for field value use case: %w", err)
	}

	return cryptoUseCase.NewFieldValueUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initRewrapSweepUseCase creates the background re-wrap sweep.
func (c *Container) initRewrapSweepUseCase() (cryptoUseCase.RewrapSweepUseCase, error) {
	ring, err := c.KekRing()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek ring for re-wrap sweep: %w", err)
	}

	keyService, err := c.KeyService()
	if err != nil {
		return nil, fmt.Errorf("failed to get key service for re-wrap sweep: %w", err)
	}

	fieldValueRepository, err := c.FieldValueRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get field value repository for re-wrap sweep: %w", err)
	}

	sweepRepository, err := c.SweepRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get sweep repository for re-wrap sweep: %w", err)
	}

	keyLifecycle, err := c.KeyLifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get key lifecycle use case for re-wrap sweep: %w", err)
	}

	sweepConfig := cryptoUseCase.SweepConfig{
		Interval:        c.config.SweepInterval,
		BatchSize:       c.config.SweepBatchSize,
		ValuesPerSecond: c.config.SweepValuesPerSecond,
	}

	return cryptoUseCase.NewRewrapSweepUseCase(
		sweepConfig,
		ring,
		keyService,
		fieldValueRepository,
		sweepRepository,
		keyLifecycle,
		c.Logger(),
	), nil
}

// initRotationSchedulerUseCase creates the age-based rotation scheduler.
func (c *Container) initRotationSchedulerUseCase() (cryptoUseCase.RotationSchedulerUseCase, error) {
	ring, err := c.KekRing()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek ring for rotation scheduler: %w", err)
	}

	keyLifecycle, err := c.KeyLifecycleUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get key lifecycle use case for rotation scheduler: %w", err)
	}

	masterKeyChain, err := c.MasterKeyChain()
	if err != nil {
		return nil, fmt.Errorf("failed to get master key chain for rotation scheduler: %w", err)
	}

	algorithm, err := cryptoDomain.ParseAlgorithm(c.config.EncryptionAlgorithm)
	if err != nil {
		return nil, err
	}

	c.config.ClampRotationPeriods()
	schedulerConfig := cryptoUseCase.SchedulerConfig{
		CheckInterval: c.config.RotationCheckInterval,
		Periods: map[classify.Tier]time.Duration{
			classify.TierCritical:  c.config.RotationPeriodCritical,
			classify.TierSensitive: c.config.RotationPeriodSensitive,
			classify.TierInternal:  c.config.RotationPeriodInternal,
		},
	}

	return cryptoUseCase.NewRotationSchedulerUseCase(
		schedulerConfig,
		ring,
		keyLifecycle,
		masterKeyChain,
		algorithm,
		c.Logger(),
	), nil
}
