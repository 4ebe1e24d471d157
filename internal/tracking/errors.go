package tracking

import (
	"fmt"
	"strings"
)

// ValidationError is returned for client input that fails validation before
// any store call. Fields names every offending field.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

func invalid(reason string, fields ...string) error {
	return &ValidationError{Fields: fields, Reason: reason}
}
