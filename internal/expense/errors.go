package expense

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for missing records and records owned by someone else
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken
	ErrConflict = errors.New("already exists")
	// ErrRecognition is returned when no text could be read from a receipt
	ErrRecognition = errors.New("failed to read receipt")
)

// ValidationError rejects input before anything is persisted
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
