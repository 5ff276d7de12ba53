// Package service provides the cryptographic services behind transparent
// field encryption: AEAD ciphers, the key service that generates and unwraps
// per-value data keys, and the envelope encryption service that binds every
// ciphertext to its encryption context.
package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyService is the external key-service contract: it hands out per-value
// data keys wrapped under a named KEK and unwraps them later. The encryption
// context is mandatory on every operation; calls without it are denied.
type KeyService interface {
	// GenerateDataKey creates a fresh 32-byte DEK wrapped under the KEK
	// identified by keyID. Only Active KEKs may generate new data keys.
	GenerateDataKey(ctx context.Context, keyID uuid.UUID, aad []byte) (*cryptoDomain.DataKey, error)

	// UnwrapDataKey recovers the plaintext DEK from its wrapped form. Works
	// for any non-deleted KEK (Active, RotatingOut, or Retired). The caller
	// must zero the returned key after use.
	UnwrapDataKey(ctx context.Context, keyID uuid.UUID, wrapped, nonce, aad []byte) ([]byte, error)

	// RewrapDataKey unwraps a DEK with the old KEK and wraps the same DEK
	// under the new KEK, leaving the data ciphertext untouched.
	RewrapDataKey(
		ctx context.Context,
		oldKeyID, newKeyID uuid.UUID,
		wrapped, nonce, aad []byte,
	) (newWrapped, newNonce []byte, err error)
}

// KekManager defines KEK material operations for the key lifecycle manager.
type KekManager interface {
	// CreateKek creates a new KEK for a tier, encrypted with the master key.
	CreateKek(
		masterKey *cryptoDomain.MasterKey,
		tier classify.Tier,
		alg cryptoDomain.Algorithm,
		version uint,
	) (cryptoDomain.Kek, error)

	// UnwrapKek decrypts a KEK's key material using the master key.
	UnwrapKek(kek *cryptoDomain.Kek, masterKey *cryptoDomain.MasterKey) ([]byte, error)
}

// EncryptionService performs envelope encrypt/decrypt of individual field
// values against the current KEK ring state.
type EncryptionService interface {
	// Encrypt seals plaintext for the tier under a fresh DEK wrapped by the
	// tier's Active KEK, bound to the mandatory encryption context.
	Encrypt(
		ctx context.Context,
		tier classify.Tier,
		plaintext []byte,
		encCtx cryptoDomain.EncryptionContext,
	) (*cryptoDomain.EncryptedValue, error)

	// Decrypt opens an encrypted value after verifying that its stored
	// context matches the caller-supplied expected context exactly.
	Decrypt(
		ctx context.Context,
		value *cryptoDomain.EncryptedValue,
		expectedCtx cryptoDomain.EncryptionContext,
	) ([]byte, error)
}

// KMSService opens keepers for master-key protection via cloud KMS providers.
type KMSService interface {
	// OpenKeeper opens a keeper for the configured KMS provider.
	// Returns an error if the KMS provider URI is invalid or connection fails.
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)
}
