package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidColumn = errors.New("invalid column")
	ErrNotFound      = errors.New("not found")
	ErrStorage       = errors.New("storage failure")
)

// FieldError describes a problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a caller-facing domain error.
type Error struct {
	Kind    error
	Message string
	Details []FieldError
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func invalidInput(msg string, details ...FieldError) *Error {
	return &Error{Kind: ErrInvalidInput, Message: msg, Details: details}
}

func invalidColumn(msg string) *Error {
	return &Error{Kind: ErrInvalidColumn, Message: msg}
}

func notFound(resource string) *Error {
	return &Error{Kind: ErrNotFound, Message: resource + " not found"}
}

// NotFoundError reports a missing entity of the named kind.
func NotFoundError(resource string) error { return notFound(resource) }

// StorageError wraps an I/O or decoding failure of the backing medium.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
