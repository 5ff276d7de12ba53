// Package classify defines the sensitivity classification of protected fields.
//
// The registry is the source of truth for which (entity type, field name)
// pairs are protected and at which sensitivity tier. It is built once at
// startup from a declarative table and validated eagerly: an entry that does
// not resolve to a known tier is a fatal configuration error. After
// construction the registry is immutable and lookups are pure, so it is safe
// for concurrent use without locking.
package classify

import (
	"fmt"
	"strings"

	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// Tier is the sensitivity classification of a protected field. The tier
// determines which KEK protects the field and how often that KEK rotates.
type Tier string

const (
	// TierCritical covers identifiers whose disclosure is unrecoverable
	// (SSNs, passport numbers, financial credentials). Rotated at most
	// every 90 days.
	TierCritical Tier = "critical"

	// TierSensitive covers personal data with legal protection requirements
	// (dates of birth, license numbers). Rotated at most every 180 days.
	TierSensitive Tier = "sensitive"

	// TierInternal covers data that must not leak but carries lower impact.
	// Rotated at most every 365 days.
	TierInternal Tier = "internal"
)

// Tiers lists all known tiers, most sensitive first.
func Tiers() []Tier {
	return []Tier{TierCritical, TierSensitive, TierInternal}
}

// ParseTier converts a string to a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierCritical:
		return TierCritical, nil
	case TierSensitive:
		return TierSensitive, nil
	case TierInternal:
		return TierInternal, nil
	default:
		return "", fmt.Errorf("%w: unknown sensitivity tier %q", apperrors.ErrConfiguration, s)
	}
}

// Valid reports whether the tier is a known classification.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierSensitive, TierInternal:
		return true
	}
	return false
}

// ProtectedField describes one protected field: which entity it belongs to,
// its column name, and its sensitivity tier. Immutable once registered.
type ProtectedField struct {
	EntityType string
	FieldName  string
	Tier       Tier
}

// Registry maps (entity type, field name) pairs to sensitivity tiers.
// Built once at startup; read-only thereafter.
type Registry struct {
	fields map[string]ProtectedField
}

func fieldKey(entityType, fieldName string) string {
	return entityType + "." + fieldName
}

// NewRegistry builds a registry from the declarative field table. It fails
// with a configuration error on empty entity types or field names, unknown
// tiers, and duplicate registrations.
func NewRegistry(fields []ProtectedField) (*Registry, error) {
	r := &Registry{fields: make(map[string]ProtectedField, len(fields))}

	for _, f := range fields {
		if f.EntityType == "" || f.FieldName == "" {
			return nil, fmt.Errorf(
				"%w: protected field with empty entity type or field name",
				apperrors.ErrConfiguration,
			)
		}
		if !f.Tier.Valid() {
			return nil, fmt.Errorf(
				"%w: field %s.%s has no resolvable sensitivity tier (got %q)",
				apperrors.ErrConfiguration, f.EntityType, f.FieldName, f.Tier,
			)
		}

		key := fieldKey(f.EntityType, f.FieldName)
		if _, exists := r.fields[key]; exists {
			return nil, fmt.Errorf(
				"%w: field %s registered more than once",
				apperrors.ErrConfiguration, key,
			)
		}
		r.fields[key] = f
	}

	return r, nil
}

// ParseFields parses the declarative "EntityType.FieldName:tier" table used
// by the PROTECTED_FIELDS configuration entry. Entries are comma-separated.
func ParseFields(spec string) ([]ProtectedField, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var fields []ProtectedField
	for entry := range strings.SplitSeq(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, tierStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf(
				"%w: protected field entry %q must be EntityType.FieldName:tier",
				apperrors.ErrConfiguration, entry,
			)
		}

		entityType, fieldName, ok := strings.Cut(strings.TrimSpace(name), ".")
		if !ok {
			return nil, fmt.Errorf(
				"%w: protected field entry %q must be EntityType.FieldName:tier",
				apperrors.ErrConfiguration, entry,
			)
		}

		tier, err := ParseTier(tierStr)
		if err != nil {
			return nil, err
		}

		fields = append(fields, ProtectedField{
			EntityType: entityType,
			FieldName:  fieldName,
			Tier:       tier,
		})
	}

	return fields, nil
}

// Tier returns the sensitivity tier of the given field, or false when the
// field is not protected.
func (r *Registry) Tier(entityType, fieldName string) (Tier, bool) {
	f, ok := r.fields[fieldKey(entityType, fieldName)]
	if !ok {
		return "", false
	}
	return f.Tier, true
}

// IsProtected reports whether the given field is protected.
func (r *Registry) IsProtected(entityType, fieldName string) bool {
	_, ok := r.Tier(entityType, fieldName)
	return ok
}

// Fields returns the protected fields registered for an entity type.
func (r *Registry) Fields(entityType string) []ProtectedField {
	var out []ProtectedField
	for _, f := range r.fields {
		if f.EntityType == entityType {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of registered protected fields.
func (r *Registry) Len() int {
	return len(r.fields)
}
