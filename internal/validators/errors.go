package validators

import (
	"errors"
	"fmt"
)

// ErrValidation matches every [ValidationError] via errors.Is.
var ErrValidation = errors.New("validation error")

var (
	ErrUnsupportedType = errors.New("unsupported type for validation")
	ErrUnknownField    = errors.New("unknown field for validation")

	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidType      = errors.New("invalid item type")
	ErrTypeCollision    = errors.New("id belongs to an item of another type")
	ErrEmptyData        = errors.New("data is required")
	ErrEmptyTitle       = errors.New("title is required")
	ErrTitleTooLong     = errors.New("title is too long")
	ErrEmptyContentID   = errors.New("content id is required")
	ErrEmptyNoteID      = errors.New("note id is required")
	ErrInvalidFormat    = errors.New("invalid content format")
	ErrInvalidTopics    = errors.New("topics must have unique ids and titles")
	ErrInvalidHash      = errors.New("invalid content hash")
	ErrEmptyFilename    = errors.New("filename is required")
	ErrInvalidSize      = errors.New("invalid size")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// ValidationError is a rejected local write. Reason is one of the sentinels
// above and is reachable through errors.Is as well as ErrValidation.
type ValidationError struct {
	Field  string
	Reason error
}

// NewValidationError wraps reason for field.
func NewValidationError(field string, reason error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
