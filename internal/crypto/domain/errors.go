package domain

import (
	"github.com/estatekit/fieldcrypt/internal/errors"
)

// Cryptographic operation error definitions.
//
// These domain-specific errors wrap the standard sentinels from
// internal/errors so that callers can branch on the taxonomy
// (invalid input, key state, service unavailable) while handlers
// map them to stable boundary error codes.
var (
	// ErrUnsupportedAlgorithm indicates the requested encryption algorithm is
	// not supported. Supported: AESGCM (AES-256-GCM), ChaCha20
	// (ChaCha20-Poly1305).
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates the cryptographic key size is invalid.
	// All keys (master keys, KEKs, and DEKs) must be exactly 32 bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates a decryption operation failed: wrong key,
	// tampered ciphertext, or a bad nonce. The specific cause is not
	// disclosed to prevent information leakage.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrMissingContext indicates an Encrypt or Decrypt call without the
	// mandatory encryption context. Context binding is what prevents
	// ciphertext substitution across fields or records, so operations
	// without it are denied outright.
	ErrMissingContext = errors.Wrap(errors.ErrInvalidInput, "encryption context is required")

	// ErrContextMismatch indicates the stored encryption context does not
	// match the caller-supplied expected context.
	ErrContextMismatch = errors.Wrap(errors.ErrInvalidInput, "encryption context mismatch")

	// ErrPlaintextTooLarge indicates the plaintext exceeds the configured
	// per-field size cap.
	ErrPlaintextTooLarge = errors.Wrap(errors.ErrInvalidInput, "plaintext too large")

	// ErrKekNotFound indicates the referenced KEK does not exist in the ring
	// or the database. Retryable after the ring is reloaded.
	ErrKekNotFound = errors.Wrap(errors.ErrKeyState, "kek not found")

	// ErrNoActiveKek indicates a tier has no Active KEK. The tier must be
	// initialized before encryptions can be served.
	ErrNoActiveKek = errors.Wrap(errors.ErrKeyState, "no active kek for tier")

	// ErrRotationInProgress indicates a rotation for the tier is already in
	// flight. Callers should retry after the re-wrap sweep has completed.
	ErrRotationInProgress = errors.Wrap(errors.ErrKeyState, "key rotation in progress")

	// ErrInvalidKekState indicates an attempted KEK state transition that the
	// Active -> RotatingOut -> Retired state machine does not permit.
	ErrInvalidKekState = errors.Wrap(errors.ErrKeyState, "invalid kek state transition")

	// Master key chain loading errors. All fatal at startup.
	ErrMasterKeysNotSet        = errors.Wrap(errors.ErrConfiguration, "MASTER_KEYS is not set")
	ErrActiveMasterKeyIDNotSet = errors.Wrap(errors.ErrConfiguration, "ACTIVE_MASTER_KEY_ID is not set")
	ErrInvalidMasterKeysFormat = errors.Wrap(errors.ErrConfiguration, "invalid MASTER_KEYS format")
	ErrInvalidMasterKeyBase64  = errors.Wrap(errors.ErrConfiguration, "invalid master key base64")
	ErrActiveMasterKeyNotFound = errors.Wrap(errors.ErrConfiguration, "active master key not found")

	// ErrMasterKeyNotFound indicates a KEK references a master key that is no
	// longer present in the chain.
	ErrMasterKeyNotFound = errors.Wrap(errors.ErrKeyState, "master key not found")
)
