package rules

import "fmt"

// NotFoundError marks a lookup or patch against an id that does not exist.
// Handlers map it to a 404 via errors.As.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError marks a rejected record or field. It is recoverable: batch
// operations report it per item and continue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
