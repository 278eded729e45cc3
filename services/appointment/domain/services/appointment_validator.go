package services

import (
	"fmt"
	"time"

	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// ValidateAppointmentForCreation performs the checks that depend on context
// outside the aggregate itself. It assumes the Appointment was built via
// models.NewAppointment, so structural constraints are already satisfied.
//
// Business rules:
//   - the appointment must not be persisted yet
//   - the appointment must start strictly after now
func ValidateAppointmentForCreation(a *models.Appointment, now time.Time) error {
	if a == nil {
		return fmt.Errorf("%w: appointment cannot be nil", domain.ErrValidation)
	}
	if !a.IsUnsaved() {
		return fmt.Errorf("%w: appointment %s is already persisted", domain.ErrValidation, a.ID)
	}
	if !a.AppointmentDate.After(now) {
		return fmt.Errorf("%w: got %s", domain.ErrDateNotInFuture, a.AppointmentDate.Format(time.RFC3339))
	}
	return nil
}
