package models

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vetbook/appointments/services/appointment/domain"
)

// Field limits. Lengths are counted in characters, not bytes.
const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 480

	MaxReasonLength             = 500
	MaxNotesLength              = 1000
	MaxCancellationReasonLength = 500
	MaxCompletedNotesLength     = 1000
)

// ValidateDuration checks that minutes lies in [MinDurationMinutes, MaxDurationMinutes].
func ValidateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration must be between %d and %d minutes, got %d",
			domain.ErrInvalidDuration, MinDurationMinutes, MaxDurationMinutes, minutes)
	}
	return nil
}

// ValidateReason checks that reason is non-blank and at most MaxReasonLength characters.
func ValidateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: reason is required", domain.ErrInvalidReason)
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason must not exceed %d characters", domain.ErrInvalidReason, MaxReasonLength)
	}
	return nil
}

func validateMaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%w: %s must not exceed %d characters", domain.ErrFieldTooLong, field, max)
	}
	return nil
}

func validateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", domain.ErrRequiredField, field)
	}
	return nil
}
