package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// EnvelopeEncryptionService implements EncryptionService with two-level
// envelope encryption: each field value is sealed under a fresh DEK, and the
// DEK is wrapped under the tier's Active KEK. The encryption context is
// authenticated on both levels, so neither the wrapped DEK nor the field
// ciphertext can be swapped between records or fields.
type EnvelopeEncryptionService struct {
	ring              *cryptoDomain.KekRing
	keyService        KeyService
	aeadManager       AEADManager
	maxPlaintextBytes int
}

// NewEnvelopeEncryptionService creates the envelope encryption service.
// maxPlaintextBytes caps the accepted plaintext size; zero or negative
// disables the cap.
func NewEnvelopeEncryptionService(
	ring *cryptoDomain.KekRing,
	keyService KeyService,
	aeadManager AEADManager,
	maxPlaintextBytes int,
) *EnvelopeEncryptionService {
	return &EnvelopeEncryptionService{
		ring:              ring,
		keyService:        keyService,
		aeadManager:       aeadManager,
		maxPlaintextBytes: maxPlaintextBytes,
	}
}

// Encrypt seals plaintext for the tier under a fresh DEK wrapped by the
// tier's Active KEK. New encryptions always route to the Active KEK; a
// RotatingOut key never wraps new data keys, which is what lets a rotation
// drain to zero references.
func (s *EnvelopeEncryptionService) Encrypt(
	ctx context.Context,
	tier classify.Tier,
	plaintext []byte,
	encCtx cryptoDomain.EncryptionContext,
) (*cryptoDomain.EncryptedValue, error) {
	if !encCtx.Valid() {
		return nil, cryptoDomain.ErrMissingContext
	}
	if s.maxPlaintextBytes > 0 && len(plaintext) > s.maxPlaintextBytes {
		return nil, fmt.Errorf(
			"%w: %d bytes exceeds limit of %d",
			cryptoDomain.ErrPlaintextTooLarge, len(plaintext), s.maxPlaintextBytes,
		)
	}

	kek, err := s.ring.Active(tier)
	if err != nil {
		return nil, err
	}

	aad := encCtx.AAD()
	dataKey, err := s.keyService.GenerateDataKey(ctx, kek.ID, aad)
	if errors.Is(err, cryptoDomain.ErrInvalidKekState) {
		// A rotation moved the KEK to RotatingOut between the ring read
		// and the wrap; re-resolve the tier's new Active key once.
		kek, err = s.ring.Active(tier)
		if err != nil {
			return nil, err
		}
		dataKey, err = s.keyService.GenerateDataKey(ctx, kek.ID, aad)
	}
	if err != nil {
		return nil, err
	}
	defer dataKey.Close()

	aead, err := s.aeadManager.CreateCipher(dataKey.Plaintext, kek.Algorithm)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value: %w", err)
	}

	return &cryptoDomain.EncryptedValue{
		KeyID:      kek.ID,
		Algorithm:  kek.Algorithm,
		WrappedDek: dataKey.Wrapped,
		DekNonce:   dataKey.Nonce,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Context:    encCtx,
	}, nil
}

// Decrypt opens an encrypted value. The stored context must match the
// caller's expected context exactly before any key material is touched, and
// the same context bytes are then authenticated by the AEAD open, so a
// ciphertext moved to a different field or record fails on both checks.
func (s *EnvelopeEncryptionService) Decrypt(
	ctx context.Context,
	value *cryptoDomain.EncryptedValue,
	expectedCtx cryptoDomain.EncryptionContext,
) ([]byte, error) {
	if !expectedCtx.Valid() {
		return nil, cryptoDomain.ErrMissingContext
	}
	if !value.Context.Equal(expectedCtx) {
		return nil, cryptoDomain.ErrContextMismatch
	}

	aad := expectedCtx.AAD()
	dekKey, err := s.keyService.UnwrapDataKey(ctx, value.KeyID, value.WrappedDek, value.DekNonce, aad)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dekKey)

	aead, err := s.aeadManager.CreateCipher(dekKey, value.Algorithm)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Decrypt(value.Ciphertext, value.Nonce, aad)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	return plaintext, nil
}
