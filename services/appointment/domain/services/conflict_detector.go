// Package services contains stateless domain services for the appointment bounded context.
// Domain services enforce business rules that operate purely on domain types
// and have zero external dependencies beyond stdlib and the domain layer.
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Intervals that only touch at a boundary do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FindConflicts returns the candidates that belong to veterinarianID, are in an
// active status and overlap [start, start+duration). Every candidate is tested;
// callers may pass a coarse superset such as a date-range query result.
func FindConflicts(candidates []*models.Appointment, veterinarianID string, start time.Time, duration int) []*models.Appointment {
	end := start.Add(time.Duration(duration) * time.Minute)

	var conflicts []*models.Appointment
	for _, c := range candidates {
		if c == nil || c.VeterinarianID != veterinarianID || !c.Status.IsActive() {
			continue
		}
		if Overlaps(start, end, c.AppointmentDate, c.EndsAt()) {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

// SlotUnavailableError builds the validation error returned when conflicts exist.
func SlotUnavailableError(veterinarianID string, start time.Time, duration int, conflicts []*models.Appointment) error {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
	}
	return fmt.Errorf("%w: veterinarian %s is booked between %s and %s (conflicts: %s)",
		domain.ErrSlotUnavailable,
		veterinarianID,
		start.UTC().Format(time.RFC3339),
		start.Add(time.Duration(duration)*time.Minute).UTC().Format(time.RFC3339),
		strings.Join(ids, ", "),
	)
}
