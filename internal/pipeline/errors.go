package pipeline

import (
	"errors"
	"fmt"
)

// ValidationError is a malformed or incomplete inbound event. Nothing
// downstream is called when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ErrMissingTranscript is returned for end-of-call reports without a
// transcript.
var ErrMissingTranscript = NewValidationError("transcript", "No transcript in end-of-call-report")

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AuthError is a webhook whose shared secret or signature does not match.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ErrInvalidSecret is returned when the relay secret header is wrong.
var ErrInvalidSecret = &AuthError{Message: "Invalid webhook secret"}

// ErrInvalidSignature is returned when the relay signature header is wrong.
var ErrInvalidSignature = &AuthError{Message: "Invalid webhook signature"}

// IsAuthError reports whether err is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// StepError is a failed pipeline step together with the policy that was
// applied to it.
type StepError struct {
	Step   Step
	Policy Policy
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Step, e.Policy, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
