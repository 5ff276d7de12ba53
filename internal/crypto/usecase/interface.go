// Package usecase orchestrates the key lifecycle: startup initialization,
// online rotation, the background re-wrap sweep, and the age-based rotation
// scheduler. Use cases coordinate the crypto services with the repositories
// and own the transactions that make state transitions atomic.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// KekRepository abstracts KEK persistence. Implementations are
// transaction-aware: operations join a transaction carried in the context.
type KekRepository interface {
	// Create stores a new KEK. The plaintext Key field is never persisted.
	Create(ctx context.Context, kek *cryptoDomain.Kek) error

	// UpdateState transitions a KEK's lifecycle state and timestamps.
	UpdateState(ctx context.Context, kek *cryptoDomain.Kek) error

	// List retrieves all KEKs ordered by tier then version descending.
	List(ctx context.Context) ([]*cryptoDomain.Kek, error)

	// ListByTier retrieves one tier's KEKs ordered by version descending.
	ListByTier(ctx context.Context, tier classify.Tier) ([]*cryptoDomain.Kek, error)

	// Get retrieves a single KEK by ID.
	Get(ctx context.Context, id uuid.UUID) (*cryptoDomain.Kek, error)
}

// FieldValueRepository abstracts persistence of protected field values.
type FieldValueRepository interface {
	Upsert(ctx context.Context, fv *cryptoDomain.FieldValue) error
	Get(ctx context.Context, entityType, fieldName, recordID string) (*cryptoDomain.FieldValue, error)
	Delete(ctx context.Context, entityType, fieldName, recordID string) error

	// ListByKeyID pages rows wrapped under a KEK, keyset-paginated on row id.
	ListByKeyID(ctx context.Context, keyID, afterID uuid.UUID, limit int) ([]*cryptoDomain.FieldValue, error)

	// CountByKeyID reports how many rows still reference a KEK.
	CountByKeyID(ctx context.Context, keyID uuid.UUID) (uint64, error)

	// UpdateWrap replaces a row's wrapped DEK, guarded on the current key id.
	// Reports whether the row was updated.
	UpdateWrap(ctx context.Context, id, oldKeyID, newKeyID uuid.UUID, wrappedDek, dekNonce []byte) (bool, error)
}

// SweepRepository persists re-wrap sweep checkpoints.
type SweepRepository interface {
	Save(ctx context.Context, cp *cryptoDomain.SweepCheckpoint) error
	Get(ctx context.Context, tier classify.Tier) (*cryptoDomain.SweepCheckpoint, error)
	Delete(ctx context.Context, tier classify.Tier) error
}

// RotationStatus describes where one tier stands in its key lifecycle.
type RotationStatus struct {
	Tier            classify.Tier `json:"tier"`
	ActiveKeyID     uuid.UUID     `json:"active_key_id"`
	ActiveVersion   uint          `json:"active_version"`
	ActiveSince     time.Time     `json:"active_since"`
	Rotating        bool          `json:"rotating"`
	RotatingKeyID   *uuid.UUID    `json:"rotating_key_id,omitempty"`
	RemainingValues uint64        `json:"remaining_values"`
	RewrappedValues uint64        `json:"rewrapped_values"`
}

// KeyLifecycleUseCase manages KEKs across their lifecycle.
type KeyLifecycleUseCase interface {
	// Init creates an Active KEK for every registered tier that has none.
	// Idempotent; safe to run on every deploy.
	Init(ctx context.Context, masterKeyChain *cryptoDomain.MasterKeyChain, alg cryptoDomain.Algorithm) error

	// Load unwraps all persisted KEKs into a ring for this process.
	Load(ctx context.Context, masterKeyChain *cryptoDomain.MasterKeyChain) (*cryptoDomain.KekRing, error)

	// Rotate starts an online rotation for a tier: a new Active KEK is
	// installed and the old one becomes RotatingOut, atomically. Returns
	// ErrRotationInProgress while a previous rotation is still draining.
	Rotate(ctx context.Context, masterKeyChain *cryptoDomain.MasterKeyChain, tier classify.Tier, alg cryptoDomain.Algorithm) error

	// Status reports the lifecycle position of a tier, including re-wrap
	// progress while a rotation is draining.
	Status(ctx context.Context, tier classify.Tier) (*RotationStatus, error)

	// Retire completes a drained rotation: the RotatingOut KEK with zero
	// remaining references becomes Retired.
	Retire(ctx context.Context, tier classify.Tier) error
}

// FieldValueUseCase encrypts and decrypts individual protected field values
// against their persisted envelopes.
type FieldValueUseCase interface {
	// Encrypt seals a plaintext for its field and persists the envelope,
	// replacing any previous value for the same context.
	Encrypt(ctx context.Context, entityType, fieldName, recordID string, plaintext []byte) (*cryptoDomain.FieldValue, error)

	// Decrypt loads and opens the envelope for one field of one record.
	Decrypt(ctx context.Context, entityType, fieldName, recordID string) ([]byte, error)

	// Delete removes the envelope for one field of one record.
	Delete(ctx context.Context, entityType, fieldName, recordID string) error
}
