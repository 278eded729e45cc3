package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_NonNil(t *testing.T) {
	for name, err := range map[string]error{
		"ErrValidation":          ErrValidation,
		"ErrAppointmentNotFound": ErrAppointmentNotFound,
		"ErrAppointmentConflict": ErrAppointmentConflict,
	} {
		if err == nil {
			t.Fatalf("%s must not be nil", name)
		}
	}
}

func TestValidationSentinels_MatchKind(t *testing.T) {
	for _, err := range []error{
		ErrRequiredField,
		ErrInvalidDuration,
		ErrInvalidReason,
		ErrFieldTooLong,
		ErrDateNotInFuture,
		ErrInvalidTransition,
		ErrSlotUnavailable,
	} {
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%q must match ErrValidation", err)
		}
		if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrAppointmentConflict) {
			t.Errorf("%q must not match another kind", err)
		}
	}
}

func TestKinds_AreDistinct(t *testing.T) {
	if errors.Is(ErrAppointmentConflict, ErrValidation) {
		t.Fatal("conflict must be distinguishable from validation")
	}
	if errors.Is(ErrAppointmentNotFound, ErrValidation) {
		t.Fatal("not found must be distinguishable from validation")
	}
}

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	wrapped := fmt.Errorf("confirm appointment: %w", ErrAppointmentNotFound)
	if !errors.Is(wrapped, ErrAppointmentNotFound) {
		t.Fatal("errors.Is must match wrapped ErrAppointmentNotFound")
	}

	wrapped2 := fmt.Errorf("%w: vet v1 at 10:00", ErrSlotUnavailable)
	if !errors.Is(wrapped2, ErrSlotUnavailable) || !errors.Is(wrapped2, ErrValidation) {
		t.Fatal("wrapped ErrSlotUnavailable must match itself and ErrValidation")
	}
}
