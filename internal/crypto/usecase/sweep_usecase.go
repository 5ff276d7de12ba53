package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// SweepConfig holds re-wrap sweep configuration.
type SweepConfig struct {
	Interval        time.Duration
	BatchSize       int
	ValuesPerSecond float64
}

// RewrapSweepUseCase drains rotating-out KEKs in the background: it walks
// every envelope still wrapped under the old key, re-wraps the DEK under the
// new Active key, and retires the old key once nothing references it.
type RewrapSweepUseCase interface {
	// Start runs the sweep loop until the context is cancelled.
	Start(ctx context.Context) error

	// SweepOnce runs a single pass over all tiers.
	SweepOnce(ctx context.Context) error
}

type rewrapSweepUseCase struct {
	config         SweepConfig
	ring           *cryptoDomain.KekRing
	keyService     cryptoService.KeyService
	fieldValueRepo FieldValueRepository
	sweepRepo      SweepRepository
	lifecycle      KeyLifecycleUseCase
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// NewRewrapSweepUseCase creates the re-wrap sweep. The rate limit caps
// re-wraps per second so the sweep never starves foreground traffic.
func NewRewrapSweepUseCase(
	config SweepConfig,
	ring *cryptoDomain.KekRing,
	keyService cryptoService.KeyService,
	fieldValueRepo FieldValueRepository,
	sweepRepo SweepRepository,
	lifecycle KeyLifecycleUseCase,
	logger *slog.Logger,
) RewrapSweepUseCase {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	limit := rate.Inf
	if config.ValuesPerSecond > 0 {
		limit = rate.Limit(config.ValuesPerSecond)
	}
	return &rewrapSweepUseCase{
		config:         config,
		ring:           ring,
		keyService:     keyService,
		fieldValueRepo: fieldValueRepo,
		sweepRepo:      sweepRepo,
		lifecycle:      lifecycle,
		limiter:        rate.NewLimiter(limit, config.BatchSize),
		logger:         logger,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (uc *rewrapSweepUseCase) Start(ctx context.Context) error {
	uc.logger.Info("starting re-wrap sweep",
		slog.Duration("interval", uc.config.Interval),
		slog.Int("batch_size", uc.config.BatchSize),
		slog.Float64("values_per_second", uc.config.ValuesPerSecond),
	)

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			uc.logger.Info("stopping re-wrap sweep")
			return ctx.Err()
		case <-ticker.C:
			if err := uc.SweepOnce(ctx); err != nil {
				if apperrors.Is(err, context.Canceled) {
					continue
				}
				uc.logger.Error("sweep pass failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce runs a single pass over all tiers. Tiers with no rotation in
// progress are skipped.
func (uc *rewrapSweepUseCase) SweepOnce(ctx context.Context) error {
	for _, tier := range classify.Tiers() {
		rotating := uc.ring.Rotating(tier)
		if rotating == nil {
			continue
		}
		if err := uc.sweepTier(ctx, tier, rotating.ID); err != nil {
			return err
		}
	}
	return nil
}

// sweepTier drains one tier's rotating-out KEK. Progress is checkpointed
// after every batch, so a restarted process resumes from the last cursor
// instead of rescanning from the start.
func (uc *rewrapSweepUseCase) sweepTier(ctx context.Context, tier classify.Tier, oldKeyID uuid.UUID) error {
	cp, err := uc.checkpoint(ctx, tier, oldKeyID)
	if err != nil {
		return err
	}

	for {
		batch, err := uc.fieldValueRepo.ListByKeyID(ctx, cp.OldKeyID, cp.LastID, uc.config.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		var failures int
		for _, fv := range batch {
			if err := uc.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := uc.rewrapValue(ctx, cp, fv); err != nil {
				// Leave the row under the old key; the next full pass
				// picks it up again.
				failures++
				uc.logger.Error("failed to re-wrap value",
					slog.String("tier", string(tier)),
					slog.String("value_id", fv.ID.String()),
					slog.Any("error", err),
				)
			}
		}

		cp.LastID = batch[len(batch)-1].ID
		if err := uc.sweepRepo.Save(ctx, cp); err != nil {
			return err
		}

		if failures > 0 {
			uc.logger.Warn("sweep batch completed with failures",
				slog.String("tier", string(tier)),
				slog.Int("failures", failures),
			)
		}
	}

	remaining, err := uc.fieldValueRepo.CountByKeyID(ctx, cp.OldKeyID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		// Rows that failed to re-wrap were passed by the cursor. Rewind
		// so the next pass retries them.
		cp.LastID = uuid.Nil
		return uc.sweepRepo.Save(ctx, cp)
	}

	if err := uc.lifecycle.Retire(ctx, tier); err != nil {
		return err
	}
	uc.logger.Info("tier drained, old kek retired",
		slog.String("tier", string(tier)),
		slog.String("old_kek_id", cp.OldKeyID.String()),
		slog.Uint64("rewrapped", cp.RewrappedCount),
	)
	return nil
}

// checkpoint loads the tier's sweep checkpoint, rebuilding it when missing
// or left over from an earlier rotation.
func (uc *rewrapSweepUseCase) checkpoint(
	ctx context.Context, tier classify.Tier, oldKeyID uuid.UUID,
) (*cryptoDomain.SweepCheckpoint, error) {
	cp, err := uc.sweepRepo.Get(ctx, tier)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if err == nil && cp.OldKeyID == oldKeyID {
		return cp, nil
	}

	active, err := uc.ring.Active(tier)
	if err != nil {
		return nil, err
	}
	cp = &cryptoDomain.SweepCheckpoint{
		Tier:     tier,
		OldKeyID: oldKeyID,
		NewKeyID: active.ID,
		LastID:   uuid.Nil,
	}
	if err := uc.sweepRepo.Save(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// rewrapValue re-wraps one envelope's DEK under the new key. The data
// ciphertext is never touched. The guarded update skips rows a concurrent
// write already moved to a fresh envelope.
func (uc *rewrapSweepUseCase) rewrapValue(
	ctx context.Context, cp *cryptoDomain.SweepCheckpoint, fv *cryptoDomain.FieldValue,
) error {
	aad := fv.Context().AAD()
	newWrapped, newNonce, err := uc.keyService.RewrapDataKey(
		ctx, cp.OldKeyID, cp.NewKeyID, fv.WrappedDek, fv.DekNonce, aad,
	)
	if err != nil {
		return err
	}

	updated, err := uc.fieldValueRepo.UpdateWrap(ctx, fv.ID, cp.OldKeyID, cp.NewKeyID, newWrapped, newNonce)
	if err != nil {
		return err
	}
	if updated {
		cp.RewrappedCount++
	}
	return nil
}
