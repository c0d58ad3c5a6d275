package booking

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// ConflictError means the requested window is no longer bookable at commit
// time. Callers should refresh availability and retry.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflict: %s", e.Detail)
}

// ForbiddenError means the actor lacks the capability for the requested
// transition.
type ForbiddenError struct {
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor is not allowed to %s", e.Action)
}

// StateError means the transition is not legal given the appointment's current
// status or the time guard, including the 24-hour cancellation window.
type StateError struct {
	Status Status
	Detail string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition from %s: %s", e.Status, e.Detail)
}

// IsConflict reports whether err is a booking conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
