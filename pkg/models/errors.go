package models

import "fmt"

// ValidationError reports a structurally invalid entity, rejected before any
// graph construction or persistence happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
