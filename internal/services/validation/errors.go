// -----------------------------------------------------------------------
// Package validation provides composable field validators and the entity
// schemas built from them
// -----------------------------------------------------------------------

package validation

import (
	"fmt"
	"strings"
)

// FieldError is a single rejected field, rendered as "{field}: {message}"
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field error
func NewFieldError(field, format string, args ...interface{}) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Errors aggregates per-field failures from a schema run
type Errors []*FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

// OrNil returns the aggregate as an error, or nil when empty
func (e Errors) OrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
