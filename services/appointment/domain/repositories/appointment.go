package repositories

import (
	"context"
	"time"

	"github.com/vetbook/appointments/services/appointment/domain/events"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// AppointmentRepository is the persistence interface for the Appointment aggregate.
// The domain layer owns this interface; infrastructure implements it.
//
// Implementations translate storage errors into the domain taxonomy:
// missing rows become ErrAppointmentNotFound, uniqueness violations become
// ErrAppointmentConflict and overlap-constraint violations become ErrSlotUnavailable.
// Updates are compare-and-swap on Version; a stale one is ErrAppointmentConflict.
type AppointmentRepository interface {
	// FindByID returns ErrAppointmentNotFound when no appointment has the given id.
	FindByID(ctx context.Context, id string) (*models.Appointment, error)

	// FindByClientID and FindByVeterinarianID return history ordered by
	// AppointmentDate descending.
	FindByClientID(ctx context.Context, clientID string) ([]*models.Appointment, error)
	FindByVeterinarianID(ctx context.Context, veterinarianID string) ([]*models.Appointment, error)

	// FindByDateRange returns appointments with AppointmentDate in [from, to),
	// ordered ascending. A nil statuses slice means every status.
	FindByDateRange(ctx context.Context, from, to time.Time, statuses []models.Status) ([]*models.Appointment, error)

	// FindConflictingAppointments returns the veterinarian's active appointments
	// whose interval intersects [start, start+duration).
	FindConflictingAppointments(ctx context.Context, veterinarianID string, start time.Time, duration int) ([]*models.Appointment, error)

	// Save inserts the appointment when its ID is empty and updates it otherwise.
	// Each builder is applied to the saved value (ID assigned) and the
	// resulting events are recorded atomically with the state change.
	Save(ctx context.Context, a *models.Appointment, pending ...events.Builder) (*models.Appointment, error)

	// Delete removes an appointment. Administrative use only; no use case calls it.
	Delete(ctx context.Context, id string) error

	// Exists reports whether an appointment with the given ID exists.
	Exists(ctx context.Context, id string) (bool, error)
}
