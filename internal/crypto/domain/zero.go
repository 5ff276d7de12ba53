package domain

// Zero overwrites b in place so plaintext key material does not linger
// in memory after use. Callers typically defer it right after obtaining
// the bytes.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
