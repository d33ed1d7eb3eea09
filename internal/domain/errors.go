package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTransition is returned when a status change is not permitted
	// from the entity's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel so errors.Is works against
// ErrValidation and friends.
func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrValidation
	}
	return e.Err
}

// Is reports ErrValidation for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// fieldErrors are the field-level sentinels returned by entity validation.
var fieldErrors = []error{
	ErrValidation,
	ErrInvalidFormat,
	ErrInvalidID,
	ErrEmptyTaskID,
	ErrEmptyTaskUserID,
	ErrEmptyTaskTitle,
	ErrTaskTitleLength,
	ErrEmptyDueDate,
	ErrInvalidTaskStatus,
	ErrEmptyNotificationID,
	ErrEmptyNotificationTaskID,
	ErrEmptyNotificationType,
	ErrEmptyNotificationMessage,
	ErrInvalidNotificationField,
	ErrInvalidNotificationStatus,
}

// IsValidationError reports whether err was caused by invalid input.
func IsValidationError(err error) bool {
	for _, target := range fieldErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
