package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for stale or unknown confirmation tokens and
	// unknown correlation references.
	ErrNotFound = errors.New("pending action no longer valid")
	// ErrNotOwner is returned when a caller acts on someone else's
	// confirmation token.
	ErrNotOwner = errors.New("caller does not own this action")
	// ErrRecipientNotFound is returned when a recipient cannot be resolved
	// to an address.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// ValidationError rejects a transfer request before anything is submitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
