// Package validation holds the custom rules the HTTP request DTOs
// apply on top of jellydator/validation.
package validation

import (
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// WrapValidationError converts a validation failure into the domain's
// ErrInvalidInput so callers can branch on the sentinel.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace rejects strings with leading or trailing whitespace.
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank rejects strings that are empty once trimmed.
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
