package domain

import (
	"errors"
	"fmt"
)

// Error kinds for the appointment domain. Use errors.Is() to check these.
var (
	// ErrValidation covers malformed input, illegal state transitions and unavailable slots.
	ErrValidation = errors.New("validation failed")

	// ErrAppointmentNotFound indicates the requested appointment does not exist.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrAppointmentConflict indicates a lost race, not bad input: a uniqueness
	// violation, or an update based on a version that was already superseded.
	ErrAppointmentConflict = errors.New("appointment was modified concurrently")
)

// Specific validation failures. Each one matches ErrValidation under errors.Is.
var (
	ErrRequiredField     = fmt.Errorf("%w: required field missing", ErrValidation)
	ErrInvalidDuration   = fmt.Errorf("%w: invalid duration", ErrValidation)
	ErrInvalidReason     = fmt.Errorf("%w: invalid reason", ErrValidation)
	ErrFieldTooLong      = fmt.Errorf("%w: field too long", ErrValidation)
	ErrDateNotInFuture   = fmt.Errorf("%w: appointment date must be in the future", ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)
	ErrSlotUnavailable   = fmt.Errorf("%w: time slot is not available", ErrValidation)
)
