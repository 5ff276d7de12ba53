package domain

import "fmt"

// Algorithm selects the AEAD used for new encryptions. Both options use
// 256-bit keys, 12-byte nonces, and 16-byte tags; existing envelopes always
// decrypt with the algorithm they were sealed with.
type Algorithm string

const (
	// AESGCM is AES-256-GCM. Preferred on CPUs with AES-NI.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305. Constant-time in software, preferred
	// where AES hardware acceleration is absent.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// ParseAlgorithm maps a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM:
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}
