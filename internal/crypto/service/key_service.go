package service

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"

	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// ringKeyService implements KeyService against the process-wide KEK ring.
// Every operation requires a non-empty encryption context (AAD); the wrap of
// each DEK is authenticated against that context, so a wrapped DEK lifted
// from one field cannot be unwrapped under another field's context.
type ringKeyService struct {
	ring        *cryptoDomain.KekRing
	aeadManager AEADManager
}

// NewRingKeyService creates a KeyService backed by the KEK ring.
func NewRingKeyService(ring *cryptoDomain.KekRing, aeadManager AEADManager) KeyService {
	return &ringKeyService{
		ring:        ring,
		aeadManager: aeadManager,
	}
}

// GenerateDataKey creates a fresh 32-byte DEK wrapped under the KEK
// identified by keyID. Denied for KEKs that are not Active: RotatingOut and
// Retired keys are decrypt-only.
func (s *ringKeyService) GenerateDataKey(
	ctx context.Context,
	keyID uuid.UUID,
	aad []byte,
) (*cryptoDomain.DataKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(aad) == 0 {
		return nil, cryptoDomain.ErrMissingContext
	}

	kek, ok := s.ring.Get(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrKekNotFound, keyID)
	}
	if !kek.State.CanEncrypt() {
		return nil, fmt.Errorf(
			"%w: kek %s is %s and cannot generate new data keys",
			cryptoDomain.ErrInvalidKekState, keyID, kek.State,
		)
	}

	dekKey := make([]byte, 32)
	if _, err := rand.Read(dekKey); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}

	aead, err := s.aeadManager.CreateCipher(kek.Key, kek.Algorithm)
	if err != nil {
		cryptoDomain.Zero(dekKey)
		return nil, err
	}

	wrapped, nonce, err := aead.Encrypt(dekKey, aad)
	if err != nil {
		cryptoDomain.Zero(dekKey)
		return nil, fmt.Errorf("failed to wrap DEK: %w", err)
	}

	return &cryptoDomain.DataKey{
		Plaintext: dekKey,
		Wrapped:   wrapped,
		Nonce:     nonce,
	}, nil
}

// UnwrapDataKey recovers the plaintext DEK from its wrapped form. Any
// non-deleted KEK may unwrap, so values written under Retired keys stay
// readable. The caller must zero the returned key after use.
func (s *ringKeyService) UnwrapDataKey(
	ctx context.Context,
	keyID uuid.UUID,
	wrapped, nonce, aad []byte,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(aad) == 0 {
		return nil, cryptoDomain.ErrMissingContext
	}

	kek, ok := s.ring.Get(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrKekNotFound, keyID)
	}

	aead, err := s.aeadManager.CreateCipher(kek.Key, kek.Algorithm)
	if err != nil {
		return nil, err
	}

	dekKey, err := aead.Decrypt(wrapped, nonce, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	return dekKey, nil
}

// RewrapDataKey unwraps a DEK with the old KEK and wraps the same DEK under
// the new KEK. The field ciphertext is untouched, so rotation cost is
// independent of plaintext size.
func (s *ringKeyService) RewrapDataKey(
	ctx context.Context,
	oldKeyID, newKeyID uuid.UUID,
	wrapped, nonce, aad []byte,
) (newWrapped, newNonce []byte, err error) {
	dekKey, err := s.UnwrapDataKey(ctx, oldKeyID, wrapped, nonce, aad)
	if err != nil {
		return nil, nil, err
	}
	defer cryptoDomain.Zero(dekKey)

	newKek, ok := s.ring.Get(newKeyID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", cryptoDomain.ErrKekNotFound, newKeyID)
	}
	if !newKek.State.CanEncrypt() {
		return nil, nil, fmt.Errorf(
			"%w: kek %s is %s and cannot wrap data keys",
			cryptoDomain.ErrInvalidKekState, newKeyID, newKek.State,
		)
	}

	aead, err := s.aeadManager.CreateCipher(newKek.Key, newKek.Algorithm)
	if err != nil {
		return nil, nil, err
	}

	newWrapped, newNonce, err = aead.Encrypt(dekKey, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to rewrap DEK: %w", err)
	}

	return newWrapped, newNonce, nil
}
