package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/vetbook/appointments/pkg/app"
	"github.com/vetbook/appointments/pkg/auth"
	"github.com/vetbook/appointments/pkg/config"
	"github.com/vetbook/appointments/services/appointment/application/handlers"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
)

// AppointmentRoutes registers appointment endpoints on the provided chi router,
// which cmd/api mounts under /api.
func AppointmentRoutes(r chi.Router, a *app.Application) {
	svcs := appsvcs.New(a)
	Register(r, svcs, a.Config.Environment == config.EnvProduction)
}

// Register mounts the appointment routes backed by svcs. Reads are open;
// every mutation requires the gateway-supplied actor header.
func Register(r chi.Router, svcs *appsvcs.Services, hideInternal bool) {
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", handlers.NewListAppointmentsHandler(svcs, hideInternal).Execute)
		r.Get("/upcoming", handlers.NewGetUpcomingHandler(svcs, hideInternal).Execute)
		r.Get("/availability", handlers.NewGetAvailabilityHandler(svcs, hideInternal).Execute)
		r.Get("/{id}", handlers.NewGetAppointmentHandler(svcs, hideInternal).Execute)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireActor)
			r.Post("/", handlers.NewPostAppointmentHandler(svcs, hideInternal).Execute)
			r.Post("/{id}/confirm", handlers.NewConfirmAppointmentHandler(svcs, hideInternal).Execute)
			r.Post("/{id}/start", handlers.NewStartAppointmentHandler(svcs, hideInternal).Execute)
			r.Post("/{id}/complete", handlers.NewCompleteAppointmentHandler(svcs, hideInternal).Execute)
			r.Post("/{id}/cancel", handlers.NewCancelAppointmentHandler(svcs, hideInternal).Execute)
			r.Post("/{id}/no-show", handlers.NewNoShowAppointmentHandler(svcs, hideInternal).Execute)
			r.Put("/{id}/notes", handlers.NewPutNotesHandler(svcs, hideInternal).Execute)
		})
	})
}
