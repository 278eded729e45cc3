package services

import (
	"github.com/vetbook/appointments/pkg/app"
	"github.com/vetbook/appointments/pkg/cache"
	"github.com/vetbook/appointments/services/appointment/infrastructure/persistence/postgres"
)

// Services is the application-layer service container for this bounded context.
// It wires domain services with their infrastructure implementations.
type Services struct {
	Appointment *AppointmentService
}

// New wires all appointment application services with infrastructure from the Application container.
func New(a *app.Application) *Services {
	repo := postgres.NewAppointmentRepository(a.Db, a.EventBus)

	var c Cache
	if a.Redis != nil {
		c = cache.NewAppointmentCache(a.Redis)
	}
	return &Services{
		Appointment: NewAppointmentService(repo, c, a.Logger.With("component", "appointment_service")),
	}
}
