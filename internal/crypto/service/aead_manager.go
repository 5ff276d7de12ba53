package service

import (
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// AEADManagerService implements AEADManager, constructing cipher instances
// for the algorithms supported by the envelope layer.
type AEADManagerService struct{}

// NewAEADManager creates a new AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher creates an AEAD cipher for the given algorithm. Returns
// ErrInvalidKeySize for keys that are not 32 bytes and
// ErrUnsupportedAlgorithm for unknown algorithms.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	if len(key) != 32 {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	switch alg {
	case cryptoDomain.AESGCM:
		return NewAESGCM(key)
	case cryptoDomain.ChaCha20:
		return NewChaCha20Poly1305(key)
	default:
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
}
