package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError rejects input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Unwrap() error { return e.Err }

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func invalidTransition(from, to string) error {
	return ValidationError{Field: "status", Message: fmt.Sprintf("cannot move from %s to %s", from, to), Err: ErrInvalidTransition}
}

var (
	// ErrConfirmationRequired is returned by destructive operations called without confirmation.
	ErrConfirmationRequired = errors.New("destructive operation requires confirmation")
	// ErrInvalidTransition reports a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrImagesDisabled is returned when no blob store is configured.
	ErrImagesDisabled = errors.New("item images are not configured")
	// ErrNoGateway is returned by operations that need a record gateway.
	ErrNoGateway = errors.New("no record gateway configured")
)

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
