// Package validation wraps go-playground/validator with the sanitization
// rules applied to free-text fields before they reach the database.
package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	apperrors "github.com/homecarehub/homecare/pkg/errors"
)

// Validator validates request structs and sanitizes user-supplied text.
type Validator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

// NewValidator creates a validator with a strict HTML sanitizer policy.
func NewValidator() *Validator {
	return &Validator{
		validate:  validator.New(),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Struct validates a struct against its validate tags and converts failures
// into RFC 7807 field errors.
func (v *Validator) Struct(s interface{}) []apperrors.FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []apperrors.FieldError{{Field: "", Code: "invalid", Message: err.Error()}}
	}

	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.FieldError{
			Field:   strings.ToLower(fe.Field()),
			Code:    fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return fields
}

// Sanitize strips all HTML from user-supplied text. Applied to names,
// addresses and notification bodies before persistence.
func (v *Validator) Sanitize(input string) string {
	if input == "" {
		return input
	}
	return strings.TrimSpace(v.sanitizer.Sanitize(input))
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", strings.ToLower(fe.Field()))
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
