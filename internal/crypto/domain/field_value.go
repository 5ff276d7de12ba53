package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
)

// FieldValue is one protected field value as stored in the field_values
// table. It is the row form of an EncryptedValue plus the identifying
// context columns the re-wrap sweep queries by.
type FieldValue struct {
	ID         uuid.UUID
	EntityType string
	FieldName  string
	RecordID   string
	KeyID      uuid.UUID // KEK the wrapped DEK references
	Algorithm  Algorithm
	WrappedDek []byte
	DekNonce   []byte
	Ciphertext []byte
	Nonce      []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Context returns the encryption context this row is bound to.
func (f *FieldValue) Context() EncryptionContext {
	return EncryptionContext{
		EntityType: f.EntityType,
		FieldName:  f.FieldName,
		RecordID:   f.RecordID,
	}
}

// Value returns the envelope form used by the encryption service.
func (f *FieldValue) Value() *EncryptedValue {
	return &EncryptedValue{
		KeyID:      f.KeyID,
		Algorithm:  f.Algorithm,
		WrappedDek: f.WrappedDek,
		DekNonce:   f.DekNonce,
		Ciphertext: f.Ciphertext,
		Nonce:      f.Nonce,
		Context:    f.Context(),
	}
}

// NewFieldValue builds a row from an envelope produced by the encryption
// service. The row ID is a fresh UUIDv7 so keyset pagination over IDs walks
// rows in insertion order.
func NewFieldValue(value *EncryptedValue) *FieldValue {
	now := time.Now().UTC()
	return &FieldValue{
		ID:         uuid.Must(uuid.NewV7()),
		EntityType: value.Context.EntityType,
		FieldName:  value.Context.FieldName,
		RecordID:   value.Context.RecordID,
		KeyID:      value.KeyID,
		Algorithm:  value.Algorithm,
		WrappedDek: value.WrappedDek,
		DekNonce:   value.DekNonce,
		Ciphertext: value.Ciphertext,
		Nonce:      value.Nonce,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SweepCheckpoint records re-wrap sweep progress for one tier's rotation so
// an interrupted sweep resumes where it stopped instead of starting over.
type SweepCheckpoint struct {
	Tier           classify.Tier
	OldKeyID       uuid.UUID // RotatingOut KEK being drained
	NewKeyID       uuid.UUID // Active KEK values are re-wrapped under
	LastID         uuid.UUID // Highest field_values.ID already processed
	RewrappedCount uint64
	UpdatedAt      time.Time
}
