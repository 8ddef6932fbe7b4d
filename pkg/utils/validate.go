package utils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormatValidationError maps every failed field to a readable message,
// keyed by the lower-cased struct path (e.g. "stream.pacing").
func FormatValidationError(errs validator.ValidationErrors) map[string]string {
	errors := make(map[string]string, len(errs))
	for _, err := range errs {
		field := fieldPath(err.Namespace())

		switch err.Tag() {
		case "required":
			errors[field] = fmt.Sprintf("%s is required", field)
		case "min":
			errors[field] = fmt.Sprintf("%s must have at least %s element(s)", field, err.Param())
		case "gt":
			errors[field] = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "gte":
			errors[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "lte":
			errors[field] = fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
		case "gtefield":
			errors[field] = fmt.Sprintf("%s must not be less than %s", field, strings.ToLower(err.Param()))
		case "oneof":
			errors[field] = fmt.Sprintf("%s must be one of [%s], got %v", field, err.Param(), err.Value())
		default:
			errors[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return errors
}

func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}

	return strings.ToLower(strings.Join(parts, "."))
}
