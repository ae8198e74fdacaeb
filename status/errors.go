package status

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every document error.
var ErrMalformed = errors.New("status: malformed document")

// FieldError reports a missing or mistyped field.
type FieldError struct {
	Document string
	Field    string
	Reason   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("status: %s document: field %q: %s", e.Document, e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool { return target == ErrMalformed }
