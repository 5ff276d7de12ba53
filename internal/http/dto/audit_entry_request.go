package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/estatekit/fieldcrypt/internal/validation"
)

// ListAuditEntriesRequest contains the query filters for listing audit
// entries. Empty filters mean no filtering.
type ListAuditEntriesRequest struct {
	ObjectName  string `form:"object_name"`
	RecordID    string `form:"record_id"`
	OperationID string `form:"operation_id"`
}

// Validate checks if the list request filters are valid.
func (r *ListAuditEntriesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ObjectName,
			customValidation.NoWhitespace,
			validation.Length(0, 255),
		),
		validation.Field(&r.RecordID,
			customValidation.NoWhitespace,
			validation.Length(0, 255),
		),
		validation.Field(&r.OperationID,
			customValidation.NotBlank,
			customValidation.NoWhitespace,
			validation.Length(0, 64),
		),
	)
}

// VerifyAuditEntriesRequest contains the parameters for an audit trail
// verification run.
type VerifyAuditEntriesRequest struct {
	// BatchSize is the page size used while walking the trail. Zero selects
	// the server default.
	BatchSize int `json:"batch_size"`
}

// Validate checks if the verify request is valid.
func (r *VerifyAuditEntriesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.BatchSize,
			validation.Min(0),
			validation.Max(10000),
		),
	)
}
