// Package service provides the HMAC signer behind tamper-evident audit
// entries.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	auditDomain "github.com/estatekit/fieldcrypt/internal/audit/domain"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// Signer signs and verifies audit entries. The signing key is derived from a
// KEK with HKDF so encryption and signing never share key material.
type Signer interface {
	// Sign computes the HMAC-SHA256 signature of the entry's canonical form.
	Sign(kekKey []byte, entry *auditDomain.AuditEntry) ([]byte, error)

	// Verify recomputes the signature and compares it in constant time.
	// Returns ErrSignatureInvalid on mismatch.
	Verify(kekKey []byte, entry *auditDomain.AuditEntry) error
}

type auditSigner struct{}

// NewSigner creates the HKDF-SHA256 / HMAC-SHA256 audit signer.
func NewSigner() Signer {
	return &auditSigner{}
}

// signingKeyInfo versions the key derivation; changing the canonical
// encoding requires a new info string.
const signingKeyInfo = "audit-entry-signing-v1"

func (a *auditSigner) deriveSigningKey(kekKey []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, kekKey, nil, []byte(signingKeyInfo))

	signingKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, signingKey); err != nil {
		return nil, err
	}
	return signingKey, nil
}

// canonicalize produces the deterministic byte form that gets signed.
// Variable-length fields are length-prefixed; optional fields carry a
// presence byte so nil and empty never collide.
func (a *auditSigner) canonicalize(entry *auditDomain.AuditEntry) []byte {
	buf := make([]byte, 0, 512)

	buf = append(buf, entry.ID[:]...)
	buf = append(buf, entry.OperationID[:]...)
	buf = append(buf, entry.SigningKeyID[:]...)

	buf = appendLengthPrefixed(buf, []byte(entry.ObjectName))
	buf = appendLengthPrefixed(buf, []byte(entry.RecordID))
	buf = appendLengthPrefixed(buf, []byte(entry.ColumnName))
	buf = appendLengthPrefixed(buf, []byte(entry.Actor))
	buf = appendOptional(buf, entry.OldValue)
	buf = appendOptional(buf, entry.NewValue)

	buf = binary.BigEndian.AppendUint64(buf, uint64(entry.CreatedAt.UnixNano()))
	return buf
}

func appendLengthPrefixed(buf, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func appendOptional(buf []byte, value *string) []byte {
	if value == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendLengthPrefixed(buf, []byte(*value))
}

// Sign generates the HMAC-SHA256 signature for the audit entry.
func (a *auditSigner) Sign(kekKey []byte, entry *auditDomain.AuditEntry) ([]byte, error) {
	signingKey, err := a.deriveSigningKey(kekKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	defer cryptoDomain.Zero(signingKey)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(a.canonicalize(entry))
	return mac.Sum(nil), nil
}

// Verify checks the entry's signature against its content.
func (a *auditSigner) Verify(kekKey []byte, entry *auditDomain.AuditEntry) error {
	expected, err := a.Sign(kekKey, entry)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}

	if !hmac.Equal(entry.Signature, expected) {
		return auditDomain.ErrSignatureInvalid
	}
	return nil
}
