package handlers

import (
	"net/http"
	"time"

	"github.com/vetbook/appointments/pkg/httpx"
	pkgvalidator "github.com/vetbook/appointments/pkg/validator"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
)

// CreateAppointmentRequest is the request body for POST /api/appointments.
type CreateAppointmentRequest struct {
	ClientID        string    `json:"client_id"        validate:"required,max=128"          example:"client-42"`
	PatientID       string    `json:"patient_id"       validate:"required,max=128"          example:"patient-7"`
	VeterinarianID  string    `json:"veterinarian_id"  validate:"required,max=128"          example:"vet-3"`
	AppointmentDate time.Time `json:"appointment_date" validate:"required"                  example:"2031-06-01T10:00:00Z"`
	Duration        int       `json:"duration"         validate:"required,gte=5,lte=480"    example:"30"`
	Reason          string    `json:"reason"           validate:"required,max=500"          example:"Annual checkup"`
	Notes           string    `json:"notes"            validate:"max=1000"                  example:"Bring vaccination card"`
} // @name CreateAppointmentRequest

// PostAppointmentHandler handles POST /api/appointments requests.
type PostAppointmentHandler struct {
	handler
}

// NewPostAppointmentHandler returns a PostAppointmentHandler backed by the given services.
func NewPostAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *PostAppointmentHandler {
	return &PostAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute books a new appointment.
//
//	@Summary		Book appointment
//	@Description	Creates a SCHEDULED appointment if the veterinarian is free for the whole slot
//	@Tags			appointments
//	@Accept			json
//	@Produce		json
//	@Param			X-Actor-ID	header		string						true	"Acting staff member"
//	@Param			request		body		CreateAppointmentRequest	true	"Appointment to book"
//	@Success		201			{object}	AppointmentResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/appointments [post]
func (h *PostAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}

	req, ok := pkgvalidator.ValidateRequest[CreateAppointmentRequest](w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Appointment.CreateAppointment(r.Context(), appsvcs.CreateAppointmentInput{
		ClientID:        req.ClientID,
		PatientID:       req.PatientID,
		VeterinarianID:  req.VeterinarianID,
		AppointmentDate: req.AppointmentDate,
		Duration:        req.Duration,
		Reason:          req.Reason,
		Notes:           req.Notes,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, toResponse(appt))
}
