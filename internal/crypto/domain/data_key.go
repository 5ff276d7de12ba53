package domain

// DataKey is a per-value Data Encryption Key handed out by the key service.
// Plaintext is kept in memory only and must be zeroed by the caller
// immediately after use; Wrapped and Nonce travel inside the EncryptedValue
// envelope so the value can be decrypted later.
type DataKey struct {
	Plaintext []byte // 32-byte DEK, never persisted or logged
	Wrapped   []byte // DEK encrypted under a KEK
	Nonce     []byte // Nonce used when wrapping the DEK
}

// Close zeroes the plaintext key material.
func (d *DataKey) Close() {
	Zero(d.Plaintext)
	d.Plaintext = nil
}
