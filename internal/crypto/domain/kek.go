// Package domain defines the core cryptographic domain models for envelope
// field encryption.
//
// It implements a three-level key hierarchy: Master Key → KEK → DEK → field
// value. Each sensitivity tier owns one Active KEK; KEKs wrap per-value Data
// Encryption Keys, enabling key rotation whose cost is independent of the
// amount of encrypted data. Supports AESGCM and ChaCha20 with 256-bit keys.
package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
)

// KekState is the lifecycle state of a Key Encryption Key.
//
// State machine: Active → RotatingOut → Retired. Exactly one Active KEK per
// tier at any time; zero or one RotatingOut KEK per tier; any number of
// Retired KEKs, retained until no ciphertext references them.
type KekState string

const (
	// KekStateActive marks the KEK used for new encryptions and for decryption.
	KekStateActive KekState = "active"

	// KekStateRotatingOut marks a KEK whose tier is mid-rotation. Valid for
	// decryption only; new encryptions route to the tier's Active KEK.
	KekStateRotatingOut KekState = "rotating_out"

	// KekStateRetired marks a KEK with zero remaining ciphertext references.
	// Still valid for decryption of stragglers until deleted after the
	// compliance grace window.
	KekStateRetired KekState = "retired"
)

// Valid reports whether the state is a known lifecycle state.
func (s KekState) Valid() bool {
	switch s {
	case KekStateActive, KekStateRotatingOut, KekStateRetired:
		return true
	}
	return false
}

// CanEncrypt reports whether new encryptions may use a KEK in this state.
// Only Active keys encrypt; RotatingOut keys are decrypt-only.
func (s KekState) CanEncrypt() bool {
	return s == KekStateActive
}

// CanDecrypt reports whether a KEK in this state may still decrypt.
// Every non-deleted key decrypts, including Retired ones.
func (s KekState) CanDecrypt() bool {
	return s.Valid()
}

// Kek represents a Key Encryption Key that wraps per-value Data Encryption
// Keys for one sensitivity tier. The key material is itself encrypted with a
// master key and stored in the database; the plaintext Key field is populated
// only after unwrapping and never persisted.
type Kek struct {
	ID           uuid.UUID     // Unique identifier (UUIDv7)
	Tier         classify.Tier // Sensitivity tier this KEK protects
	State        KekState      // Active, RotatingOut, or Retired
	Version      uint          // Monotonic per-tier version, bumped on rotation
	Algorithm    Algorithm     // Encryption algorithm (AESGCM or ChaCha20)
	MasterKeyID  string        // ID of the master key used to encrypt this KEK
	EncryptedKey []byte        // The KEK encrypted with the master key
	Key          []byte        // Plaintext KEK (populated after decryption, never persisted)
	Nonce        []byte        // Unique nonce for encrypting the KEK
	CreatedAt    time.Time
	RotatedAt    *time.Time // When the key left Active
	RetiredAt    *time.Time // When the key reached Retired
}

// tierKeys holds the live key state for one tier. The mutex is the
// single-writer guard for that tier's state transitions.
type tierKeys struct {
	mu       sync.Mutex
	active   *Kek
	rotating *Kek
	version  uint64
}

// KekRing is the process-wide registry of unwrapped KEKs, shared by the
// encryption service and the key lifecycle manager. Reads are guarded by a
// ring-level RWMutex; every state transition additionally goes through the
// owning tier's single-writer mutex, so two concurrent rotations for one tier
// cannot both succeed.
//
// A *Kek handed out by Get, Active, or Rotating is never mutated afterwards:
// state transitions publish fresh copies, so holders read a consistent
// snapshot without further locking.
type KekRing struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Kek
	tiers map[classify.Tier]*tierKeys
}

// NewKekRing builds a ring from unwrapped KEKs, validating the per-tier
// invariants: exactly one Active KEK per populated tier and at most one
// RotatingOut KEK.
func NewKekRing(keks []*Kek) (*KekRing, error) {
	r := &KekRing{
		byID:  make(map[uuid.UUID]*Kek, len(keks)),
		tiers: make(map[classify.Tier]*tierKeys),
	}
	for _, tier := range classify.Tiers() {
		r.tiers[tier] = &tierKeys{}
	}

	for _, kek := range keks {
		slot, ok := r.tiers[kek.Tier]
		if !ok {
			return nil, fmt.Errorf("%w: kek %s has unknown tier %q", ErrInvalidKekState, kek.ID, kek.Tier)
		}

		switch kek.State {
		case KekStateActive:
			if slot.active != nil {
				return nil, fmt.Errorf(
					"%w: tier %s has more than one active kek", ErrInvalidKekState, kek.Tier,
				)
			}
			slot.active = kek
		case KekStateRotatingOut:
			if slot.rotating != nil {
				return nil, fmt.Errorf(
					"%w: tier %s has more than one rotating-out kek", ErrInvalidKekState, kek.Tier,
				)
			}
			slot.rotating = kek
		case KekStateRetired:
			// retired keys only need to stay resolvable by ID
		default:
			return nil, fmt.Errorf("%w: kek %s has state %q", ErrInvalidKekState, kek.ID, kek.State)
		}

		r.byID[kek.ID] = kek
	}

	return r, nil
}

// Active returns the tier's Active KEK. New encryptions always route here,
// even while an older key is rotating out.
func (r *KekRing) Active(tier classify.Tier) (*Kek, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.tiers[tier]
	if !ok || slot.active == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveKek, tier)
	}
	return slot.active, nil
}

// Get resolves a KEK by ID regardless of state. Decryption uses this path so
// that values written under Retired keys remain readable.
func (r *KekRing) Get(id uuid.UUID) (*Kek, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kek, ok := r.byID[id]
	return kek, ok
}

// Rotating returns the tier's RotatingOut KEK, or nil when no rotation is in
// flight.
func (r *KekRing) Rotating(tier classify.Tier) *Kek {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.tiers[tier]
	if !ok {
		return nil
	}
	return slot.rotating
}

// TierVersion returns the tier's transition counter. Bumped on every state
// transition; usable as an optimistic check around ring reads.
func (r *KekRing) TierVersion(tier classify.Tier) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.tiers[tier]
	if !ok {
		return 0
	}
	return slot.version
}

// LockTier acquires the tier's single-writer rotation lock. The caller must
// hold it across the whole rotation step (database transaction plus ring
// update) and release it with UnlockTier.
func (r *KekRing) LockTier(tier classify.Tier) {
	r.tierSlot(tier).mu.Lock()
}

// UnlockTier releases the tier's rotation lock.
func (r *KekRing) UnlockTier(tier classify.Tier) {
	r.tierSlot(tier).mu.Unlock()
}

func (r *KekRing) tierSlot(tier classify.Tier) *tierKeys {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tiers[tier]
}

// StartRotation installs newActive as the tier's Active KEK and moves the
// previous Active key to RotatingOut. Fails with ErrRotationInProgress when a
// RotatingOut key already exists for the tier. When the tier had no Active
// KEK at all (first initialization), newActive simply becomes Active.
//
// The caller must hold the tier rotation lock (LockTier).
func (r *KekRing) StartRotation(tier classify.Tier, newActive *Kek) error {
	if newActive == nil || newActive.Tier != tier || !newActive.State.CanEncrypt() {
		return fmt.Errorf("%w: new kek must be active for tier %s", ErrInvalidKekState, tier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.tiers[tier]
	if !ok {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidKekState, tier)
	}
	if slot.rotating != nil {
		return fmt.Errorf("%w: tier %s", ErrRotationInProgress, tier)
	}

	if prev := slot.active; prev != nil {
		// Published *Kek values are immutable: readers resolved through
		// Get/Active may still hold prev, so the transition installs a
		// fresh copy instead of mutating it in place.
		now := time.Now().UTC()
		rotating := *prev
		rotating.State = KekStateRotatingOut
		rotating.RotatedAt = &now
		slot.rotating = &rotating
		r.byID[rotating.ID] = &rotating
	}

	slot.active = newActive
	slot.version++
	r.byID[newActive.ID] = newActive

	return nil
}

// Retire completes a rotation: the tier's RotatingOut KEK transitions to
// Retired once the re-wrap sweep has confirmed zero remaining references.
// The key stays resolvable by ID for decryption of stragglers.
//
// The caller must hold the tier rotation lock (LockTier).
func (r *KekRing) Retire(tier classify.Tier, oldID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.tiers[tier]
	if !ok {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidKekState, tier)
	}
	if slot.rotating == nil || slot.rotating.ID != oldID {
		return fmt.Errorf("%w: kek %s is not rotating out of tier %s", ErrInvalidKekState, oldID, tier)
	}

	now := time.Now().UTC()
	retired := *slot.rotating
	retired.State = KekStateRetired
	retired.RetiredAt = &now
	r.byID[retired.ID] = &retired
	slot.rotating = nil
	slot.version++

	return nil
}

// Close securely clears all KEK key material from the ring.
func (r *KekRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kek := range r.byID {
		Zero(kek.Key)
	}
	r.byID = make(map[uuid.UUID]*Kek)
	for _, slot := range r.tiers {
		slot.active = nil
		slot.rotating = nil
	}
}
