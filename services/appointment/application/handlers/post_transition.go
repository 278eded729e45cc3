package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vetbook/appointments/pkg/httpx"
	pkgvalidator "github.com/vetbook/appointments/pkg/validator"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// CompleteAppointmentRequest is the optional body for POST /api/appointments/{id}/complete.
type CompleteAppointmentRequest struct {
	Notes string `json:"notes" validate:"max=1000" example:"Healthy, next visit in a year"`
} // @name CompleteAppointmentRequest

// CancelAppointmentRequest is the optional body for POST /api/appointments/{id}/cancel.
type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500" example:"Owner unavailable"`
} // @name CancelAppointmentRequest

// UpdateNotesRequest is the body for PUT /api/appointments/{id}/notes.
type UpdateNotesRequest struct {
	Notes string `json:"notes" validate:"max=1000" example:"Bring vaccination card"`
} // @name UpdateNotesRequest

// ConfirmAppointmentHandler handles POST /api/appointments/{id}/confirm.
type ConfirmAppointmentHandler struct{ handler }

func NewConfirmAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *ConfirmAppointmentHandler {
	return &ConfirmAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute confirms a SCHEDULED appointment.
//
//	@Summary	Confirm appointment
//	@Tags		appointments
//	@Produce	json
//	@Param		X-Actor-ID	header		string	true	"Acting staff member"
//	@Param		id			path		string	true	"Appointment ID"
//	@Success	200			{object}	AppointmentResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/appointments/{id}/confirm [post]
func (h *ConfirmAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respond(w)(h.svc.Appointment.ConfirmAppointment(r.Context(), chi.URLParam(r, "id"), actor))
}

// StartAppointmentHandler handles POST /api/appointments/{id}/start.
type StartAppointmentHandler struct{ handler }

func NewStartAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *StartAppointmentHandler {
	return &StartAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute starts a CONFIRMED appointment.
//
//	@Summary	Start appointment
//	@Tags		appointments
//	@Produce	json
//	@Param		X-Actor-ID	header		string	true	"Acting veterinarian"
//	@Param		id			path		string	true	"Appointment ID"
//	@Success	200			{object}	AppointmentResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/appointments/{id}/start [post]
func (h *StartAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.respond(w)(h.svc.Appointment.StartAppointment(r.Context(), chi.URLParam(r, "id"), actor))
}

// CompleteAppointmentHandler handles POST /api/appointments/{id}/complete.
type CompleteAppointmentHandler struct{ handler }

func NewCompleteAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *CompleteAppointmentHandler {
	return &CompleteAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute completes an IN_PROGRESS appointment.
//
//	@Summary	Complete appointment
//	@Tags		appointments
//	@Accept		json
//	@Produce	json
//	@Param		X-Actor-ID	header		string						true	"Acting veterinarian"
//	@Param		id			path		string						true	"Appointment ID"
//	@Param		request		body		CompleteAppointmentRequest	false	"Completion notes"
//	@Success	200			{object}	AppointmentResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/appointments/{id}/complete [post]
func (h *CompleteAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[CompleteAppointmentRequest](w, r)
	if !ok {
		return
	}
	h.respond(w)(h.svc.Appointment.CompleteAppointment(r.Context(), chi.URLParam(r, "id"), actor, req.Notes))
}

// CancelAppointmentHandler handles POST /api/appointments/{id}/cancel.
type CancelAppointmentHandler struct{ handler }

func NewCancelAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *CancelAppointmentHandler {
	return &CancelAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute cancels any appointment that is not COMPLETED or CANCELLED.
//
//	@Summary	Cancel appointment
//	@Tags		appointments
//	@Accept		json
//	@Produce	json
//	@Param		X-Actor-ID	header		string						true	"Acting staff member"
//	@Param		id			path		string						true	"Appointment ID"
//	@Param		request		body		CancelAppointmentRequest	false	"Cancellation reason"
//	@Success	200			{object}	AppointmentResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/appointments/{id}/cancel [post]
func (h *CancelAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[CancelAppointmentRequest](w, r)
	if !ok {
		return
	}
	h.respond(w)(h.svc.Appointment.CancelAppointment(r.Context(), chi.URLParam(r, "id"), actor, req.Reason))
}

// NoShowAppointmentHandler handles POST /api/appointments/{id}/no-show.
type NoShowAppointmentHandler struct{ handler }

func NewNoShowAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *NoShowAppointmentHandler {
	return &NoShowAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute marks a SCHEDULED or CONFIRMED appointment as a no-show ahead of the timer.
//
//	@Summary	Mark no-show
//	@Tags		appointments
//	@Produce	json
//	@Param		X-Actor-ID	header		string	true	"Acting staff member"
//	@Param		id			path		string	true	"Appointment ID"
//	@Success	200			{object}	AppointmentResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/appointments/{id}/no-show [post]
func (h *NoShowAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	h.respond(w)(h.svc.Appointment.MarkNoShow(r.Context(), chi.URLParam(r, "id")))
}

// PutNotesHandler handles PUT /api/appointments/{id}/notes.
type PutNotesHandler struct{ handler }

func NewPutNotesHandler(svc *appsvcs.Services, hideInternal bool) *PutNotesHandler {
	return &PutNotesHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute replaces the appointment notes.
//
//	@Summary	Update notes
//	@Tags		appointments
//	@Accept		json
//	@Produce	json
//	@Param		X-Actor-ID	header		string				true	"Acting staff member"
//	@Param		id			path		string				true	"Appointment ID"
//	@Param		request		body		UpdateNotesRequest	true	"New notes"
//	@Success	200			{object}	AppointmentResponse
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/appointments/{id}/notes [put]
func (h *PutNotesHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[UpdateNotesRequest](w, r)
	if !ok {
		return
	}
	h.respond(w)(h.svc.Appointment.UpdateNotes(r.Context(), chi.URLParam(r, "id"), req.Notes))
}

// respond writes the transitioned appointment or the mapped error.
func (h handler) respond(w http.ResponseWriter) func(*models.Appointment, error) {
	return func(appt *models.Appointment, err error) {
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toResponse(appt))
	}
}
