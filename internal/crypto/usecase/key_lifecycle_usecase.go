package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
	"github.com/estatekit/fieldcrypt/internal/database"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// keyLifecycleUseCase implements KeyLifecycleUseCase. Rotation holds the
// tier's single-writer lock across the database transaction and the ring
// update, so the ring never disagrees with committed state. Partial unique
// indexes in the keks table back the same invariants across processes.
type keyLifecycleUseCase struct {
	txManager      database.TxManager
	kekRepo        KekRepository
	fieldValueRepo FieldValueRepository
	sweepRepo      SweepRepository
	kekManager     cryptoService.KekManager
	ring           *cryptoDomain.KekRing
	logger         *slog.Logger
}

// NewKeyLifecycleUseCase creates the key lifecycle use case. The ring is
// attached later via Load.
func NewKeyLifecycleUseCase(
	txManager database.TxManager,
	kekRepo KekRepository,
	fieldValueRepo FieldValueRepository,
	sweepRepo SweepRepository,
	kekManager cryptoService.KekManager,
	logger *slog.Logger,
) KeyLifecycleUseCase {
	return &keyLifecycleUseCase{
		txManager:      txManager,
		kekRepo:        kekRepo,
		fieldValueRepo: fieldValueRepo,
		sweepRepo:      sweepRepo,
		kekManager:     kekManager,
		logger:         logger,
	}
}

func (k *keyLifecycleUseCase) getMasterKey(
	chain *cryptoDomain.MasterKeyChain, id string,
) (*cryptoDomain.MasterKey, error) {
	masterKey, ok := chain.Get(id)
	if !ok {
		return nil, cryptoDomain.ErrMasterKeyNotFound
	}
	return masterKey, nil
}

// Init creates an Active KEK for every tier that has none. Idempotent.
func (k *keyLifecycleUseCase) Init(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	alg cryptoDomain.Algorithm,
) error {
	masterKey, err := k.getMasterKey(masterKeyChain, masterKeyChain.ActiveMasterKeyID())
	if err != nil {
		return err
	}

	return k.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, tier := range classify.Tiers() {
			keks, err := k.kekRepo.ListByTier(ctx, tier)
			if err != nil {
				return err
			}
			if hasActive(keks) {
				continue
			}

			kek, err := k.kekManager.CreateKek(masterKey, tier, alg, nextVersion(keks))
			if err != nil {
				return err
			}
			defer cryptoDomain.Zero(kek.Key)

			if err := k.kekRepo.Create(ctx, &kek); err != nil {
				return err
			}
			k.logger.Info("created initial kek",
				slog.String("tier", string(tier)),
				slog.String("kek_id", kek.ID.String()),
			)
		}
		return nil
	})
}

func hasActive(keks []*cryptoDomain.Kek) bool {
	for _, kek := range keks {
		if kek.State == cryptoDomain.KekStateActive {
			return true
		}
	}
	return false
}

func nextVersion(keks []*cryptoDomain.Kek) uint {
	var max uint
	for _, kek := range keks {
		if kek.Version > max {
			max = kek.Version
		}
	}
	return max + 1
}

// Load unwraps all persisted KEKs into a ring and attaches it to this use
// case for subsequent rotations.
func (k *keyLifecycleUseCase) Load(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
) (*cryptoDomain.KekRing, error) {
	keks, err := k.kekRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, kek := range keks {
		masterKey, err := k.getMasterKey(masterKeyChain, kek.MasterKeyID)
		if err != nil {
			return nil, err
		}
		key, err := k.kekManager.UnwrapKek(kek, masterKey)
		if err != nil {
			return nil, err
		}
		kek.Key = key
	}

	ring, err := cryptoDomain.NewKekRing(keks)
	if err != nil {
		return nil, err
	}
	k.ring = ring
	return ring, nil
}

// Rotate starts an online rotation for a tier. The lock is held across the
// transaction plus the ring update; readers are never blocked and keep
// decrypting under the old key while it drains.
func (k *keyLifecycleUseCase) Rotate(
	ctx context.Context,
	masterKeyChain *cryptoDomain.MasterKeyChain,
	tier classify.Tier,
	alg cryptoDomain.Algorithm,
) error {
	if k.ring == nil {
		return apperrors.Wrap(apperrors.ErrConfiguration, "kek ring not loaded")
	}
	if !tier.Valid() {
		return apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown tier %q", tier)
	}

	masterKey, err := k.getMasterKey(masterKeyChain, masterKeyChain.ActiveMasterKeyID())
	if err != nil {
		return err
	}

	k.ring.LockTier(tier)
	defer k.ring.UnlockTier(tier)

	if k.ring.Rotating(tier) != nil {
		return apperrors.Wrapf(cryptoDomain.ErrRotationInProgress, "tier %s", tier)
	}

	oldActive, err := k.ring.Active(tier)
	if err != nil {
		return err
	}

	newKek, err := k.kekManager.CreateKek(masterKey, tier, alg, oldActive.Version+1)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = k.txManager.WithTx(ctx, func(ctx context.Context) error {
		rotated := *oldActive
		rotated.State = cryptoDomain.KekStateRotatingOut
		rotated.RotatedAt = &now
		if err := k.kekRepo.UpdateState(ctx, &rotated); err != nil {
			return err
		}

		if err := k.kekRepo.Create(ctx, &newKek); err != nil {
			return err
		}

		return k.sweepRepo.Save(ctx, &cryptoDomain.SweepCheckpoint{
			Tier:     tier,
			OldKeyID: oldActive.ID,
			NewKeyID: newKek.ID,
			LastID:   uuid.Nil,
		})
	})
	if err != nil {
		cryptoDomain.Zero(newKek.Key)
		return err
	}

	if err := k.ring.StartRotation(tier, &newKek); err != nil {
		// The transaction committed but the ring rejected the transition;
		// this only happens if the ring state diverged from the database.
		return err
	}

	k.logger.Info("started kek rotation",
		slog.String("tier", string(tier)),
		slog.String("old_kek_id", oldActive.ID.String()),
		slog.String("new_kek_id", newKek.ID.String()),
		slog.Uint64("new_version", uint64(newKek.Version)),
	)
	return nil
}

// Status reports the lifecycle position of a tier.
func (k *keyLifecycleUseCase) Status(ctx context.Context, tier classify.Tier) (*RotationStatus, error) {
	if k.ring == nil {
		return nil, apperrors.Wrap(apperrors.ErrConfiguration, "kek ring not loaded")
	}
	if !tier.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown tier %q", tier)
	}

	active, err := k.ring.Active(tier)
	if err != nil {
		return nil, err
	}

	status := &RotationStatus{
		Tier:          tier,
		ActiveKeyID:   active.ID,
		ActiveVersion: active.Version,
		ActiveSince:   active.CreatedAt,
	}

	rotating := k.ring.Rotating(tier)
	if rotating == nil {
		return status, nil
	}

	status.Rotating = true
	rotatingID := rotating.ID
	status.RotatingKeyID = &rotatingID

	remaining, err := k.fieldValueRepo.CountByKeyID(ctx, rotating.ID)
	if err != nil {
		return nil, err
	}
	status.RemainingValues = remaining

	if cp, err := k.sweepRepo.Get(ctx, tier); err == nil {
		status.RewrappedValues = cp.RewrappedCount
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	return status, nil
}

// Retire completes a drained rotation. The sweep calls this after it has
// confirmed zero remaining references; the check is repeated inside the
// transaction so a straggler write under the old key aborts the transition.
func (k *keyLifecycleUseCase) Retire(ctx context.Context, tier classify.Tier) error {
	if k.ring == nil {
		return apperrors.Wrap(apperrors.ErrConfiguration, "kek ring not loaded")
	}

	k.ring.LockTier(tier)
	defer k.ring.UnlockTier(tier)

	rotating := k.ring.Rotating(tier)
	if rotating == nil {
		return apperrors.Wrapf(cryptoDomain.ErrInvalidKekState, "tier %s has no rotating kek", tier)
	}

	now := time.Now().UTC()
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		remaining, err := k.fieldValueRepo.CountByKeyID(ctx, rotating.ID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return apperrors.Wrapf(
				cryptoDomain.ErrInvalidKekState,
				"kek for tier %s still has %d references", tier, remaining,
			)
		}

		retired := *rotating
		retired.State = cryptoDomain.KekStateRetired
		retired.RetiredAt = &now
		if err := k.kekRepo.UpdateState(ctx, &retired); err != nil {
			return err
		}

		return k.sweepRepo.Delete(ctx, tier)
	})
	if err != nil {
		return err
	}

	if err := k.ring.Retire(tier, rotating.ID); err != nil {
		return err
	}

	k.logger.Info("retired kek",
		slog.String("tier", string(tier)),
		slog.String("kek_id", rotating.ID.String()),
	)
	return nil
}
