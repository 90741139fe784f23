package validatorutil

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

var validate = validator.New()

// Struct validates data against its `validate` tags. Field failures are
// returned as a VALIDATION_FAILED error keyed by field name.
func Struct(data any) error {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = describe(fe)
	}
	return apperrors.NewValidationError("invalid payload", details)
}

// Var validates a single value against tag.
func Var(field any, tag string) error {
	return validate.Var(field, tag)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}
