package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// SchedulerConfig holds the rotation scheduler configuration. Periods maps
// each tier to the maximum age of its Active KEK.
type SchedulerConfig struct {
	CheckInterval time.Duration
	Periods       map[classify.Tier]time.Duration
}

// RotationSchedulerUseCase rotates KEKs on age: when a tier's Active KEK
// exceeds its configured rotation period, a rotation is started. Operators
// can still rotate earlier through the API; the scheduler only enforces the
// ceiling.
type RotationSchedulerUseCase interface {
	// Start runs the scheduler loop until the context is cancelled.
	Start(ctx context.Context) error

	// CheckOnce evaluates every tier once and rotates those past due.
	CheckOnce(ctx context.Context) error
}

type rotationSchedulerUseCase struct {
	config         SchedulerConfig
	ring           *cryptoDomain.KekRing
	lifecycle      KeyLifecycleUseCase
	masterKeyChain *cryptoDomain.MasterKeyChain
	alg            cryptoDomain.Algorithm
	logger         *slog.Logger
}

// NewRotationSchedulerUseCase creates the rotation scheduler.
func NewRotationSchedulerUseCase(
	config SchedulerConfig,
	ring *cryptoDomain.KekRing,
	lifecycle KeyLifecycleUseCase,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	alg cryptoDomain.Algorithm,
	logger *slog.Logger,
) RotationSchedulerUseCase {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Hour
	}
	return &rotationSchedulerUseCase{
		config:         config,
		ring:           ring,
		lifecycle:      lifecycle,
		masterKeyChain: masterKeyChain,
		alg:            alg,
		logger:         logger,
	}
}

// Start runs the scheduler loop until the context is cancelled.
func (uc *rotationSchedulerUseCase) Start(ctx context.Context) error {
	uc.logger.Info("starting rotation scheduler",
		slog.Duration("check_interval", uc.config.CheckInterval),
	)

	ticker := time.NewTicker(uc.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stopping rotation scheduler")
			return ctx.Err()
		case <-ticker.C:
			if err := uc.CheckOnce(ctx); err != nil {
				uc.logger.Error("rotation check failed", slog.Any("error", err))
			}
		}
	}
}

// CheckOnce evaluates every tier once. A tier whose previous rotation is
// still draining is left alone; the sweep finishes it first.
func (uc *rotationSchedulerUseCase) CheckOnce(ctx context.Context) error {
	for _, tier := range classify.Tiers() {
		period, ok := uc.config.Periods[tier]
		if !ok || period <= 0 {
			continue
		}

		if uc.ring.Rotating(tier) != nil {
			continue
		}

		active, err := uc.ring.Active(tier)
		if err != nil {
			return err
		}

		age := time.Since(active.CreatedAt)
		if age < period {
			continue
		}

		uc.logger.Info("active kek past rotation period",
			slog.String("tier", string(tier)),
			slog.String("kek_id", active.ID.String()),
			slog.Duration("age", age),
			slog.Duration("period", period),
		)

		err = uc.lifecycle.Rotate(ctx, uc.masterKeyChain, tier, uc.alg)
		if err != nil && !apperrors.Is(err, cryptoDomain.ErrRotationInProgress) {
			return err
		}
	}
	return nil
}
