package domain

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContextVersion is the current encryption-context schema version. The
// version is part of the authenticated data, so a future schema change can
// never produce AAD bytes that collide with version 1.
const ContextVersion = 1

// EncryptionContext is the associated data bound to every encrypted field
// value. It ties a ciphertext to one field of one record: a value lifted from
// Person.SocialSecurityNumber cannot be replayed into another field, another
// record, or another entity type, because decryption authenticates the
// context bytes.
//
// The schema is fixed and versioned; all three attributes are mandatory.
type EncryptionContext struct {
	EntityType string `json:"entity_type"`
	FieldName  string `json:"field_name"`
	RecordID   string `json:"record_id"`
}

// Valid reports whether all mandatory context attributes are present.
func (c EncryptionContext) Valid() bool {
	return c.EntityType != "" && c.FieldName != "" && c.RecordID != ""
}

// Equal reports whether two contexts match exactly.
func (c EncryptionContext) Equal(other EncryptionContext) bool {
	return c == other
}

// AAD produces the canonical byte representation of the context used as
// additional authenticated data. Length-prefixed encoding prevents ambiguity
// between adjacent variable-length fields ("ab"+"c" vs "a"+"bc").
func (c EncryptionContext) AAD() []byte {
	buf := make([]byte, 0, 1+3*4+len(c.EntityType)+len(c.FieldName)+len(c.RecordID))
	buf = append(buf, ContextVersion)
	buf = appendLengthPrefixed(buf, []byte(c.EntityType))
	buf = appendLengthPrefixed(buf, []byte(c.FieldName))
	buf = appendLengthPrefixed(buf, []byte(c.RecordID))
	return buf
}

// appendLengthPrefixed appends data prefixed with its big-endian uint32 length.
func appendLengthPrefixed(buf, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// EncryptedValue is the persisted representation of one protected field
// value: the field ciphertext, the wrapped DEK that encrypted it, the KEK
// reference the DEK is wrapped under, and the bound encryption context.
//
// Immutable once written: an update of the field produces a brand-new
// EncryptedValue. The one sanctioned mutation is the rotation re-wrap, which
// replaces WrappedDek/DekNonce/KeyID while leaving the ciphertext bytes
// untouched.
type EncryptedValue struct {
	KeyID      uuid.UUID         // KEK the DEK is wrapped under
	Algorithm  Algorithm         // AEAD algorithm used for the field ciphertext
	WrappedDek []byte            // DEK encrypted under the KEK
	DekNonce   []byte            // Nonce used when wrapping the DEK
	Ciphertext []byte            // Field value sealed under the DEK
	Nonce      []byte            // Nonce used when sealing the field value
	Context    EncryptionContext // Authenticated context bound to the ciphertext
}

// opaquePrefix versions the single-column wire form of an EncryptedValue.
const opaquePrefix = "fcv1:"

// opaqueEnvelope is the serialized shape behind the opaque column value.
type opaqueEnvelope struct {
	KeyID      uuid.UUID         `json:"key_id"`
	Algorithm  Algorithm         `json:"alg"`
	WrappedDek []byte            `json:"wrapped_dek"`
	DekNonce   []byte            `json:"dek_nonce"`
	Ciphertext []byte            `json:"ciphertext"`
	Nonce      []byte            `json:"nonce"`
	Context    EncryptionContext `json:"context"`
}

// MarshalOpaque serializes the value into the single opaque string stored in
// the protected field's column.
func (v *EncryptedValue) MarshalOpaque() (string, error) {
	payload, err := json.Marshal(opaqueEnvelope{
		KeyID:      v.KeyID,
		Algorithm:  v.Algorithm,
		WrappedDek: v.WrappedDek,
		DekNonce:   v.DekNonce,
		Ciphertext: v.Ciphertext,
		Nonce:      v.Nonce,
		Context:    v.Context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal encrypted value: %w", err)
	}
	return opaquePrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// ParseOpaque deserializes an opaque column value back into an
// EncryptedValue. Returns ErrDecryptionFailed on any malformed input; the
// specific parse failure is not disclosed.
func ParseOpaque(s string) (*EncryptedValue, error) {
	raw, ok := strings.CutPrefix(s, opaquePrefix)
	if !ok {
		return nil, ErrDecryptionFailed
	}

	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	var env opaqueEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrDecryptionFailed
	}

	return &EncryptedValue{
		KeyID:      env.KeyID,
		Algorithm:  env.Algorithm,
		WrappedDek: env.WrappedDek,
		DekNonce:   env.DekNonce,
		Ciphertext: env.Ciphertext,
		Nonce:      env.Nonce,
		Context:    env.Context,
	}, nil
}

// IsOpaqueValue reports whether a stored column value carries the opaque
// encrypted-value prefix.
func IsOpaqueValue(s string) bool {
	return strings.HasPrefix(s, opaquePrefix)
}
