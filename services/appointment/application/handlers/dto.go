package handlers

import (
	"net/http"
	"time"

	"github.com/vetbook/appointments/pkg/auth"
	"github.com/vetbook/appointments/pkg/errhttp"
	"github.com/vetbook/appointments/pkg/httpx"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// AppointmentResponse is the JSON shape of one appointment.
type AppointmentResponse struct {
	ID                 string    `json:"id"                            example:"5f1c2b9e-3a44-4c1e-9a57-0d1f8b2f6a10"`
	ClientID           string    `json:"client_id"                     example:"client-42"`
	PatientID          string    `json:"patient_id"                    example:"patient-7"`
	VeterinarianID     string    `json:"veterinarian_id"               example:"vet-3"`
	AppointmentDate    time.Time `json:"appointment_date"              example:"2031-06-01T10:00:00Z"`
	EndsAt             time.Time `json:"ends_at"                       example:"2031-06-01T10:30:00Z"`
	Duration           int       `json:"duration"                      example:"30"`
	Status             string    `json:"status"                        example:"SCHEDULED"`
	Reason             string    `json:"reason"                        example:"Annual checkup"`
	Notes              string    `json:"notes,omitempty"               example:"Bring vaccination card"`
	CancellationReason string    `json:"cancellation_reason,omitempty" example:"Owner unavailable"`
	CompletedNotes     string    `json:"completed_notes,omitempty"     example:"Healthy, next visit in a year"`
	ConfirmedBy        string    `json:"confirmed_by,omitempty"        example:"staff-1"`
	StartedBy          string    `json:"started_by,omitempty"          example:"vet-3"`
	CompletedBy        string    `json:"completed_by,omitempty"        example:"vet-3"`
	CancelledBy        string    `json:"cancelled_by,omitempty"        example:"staff-1"`
	CreatedAt          time.Time `json:"created_at"                    example:"2031-05-20T08:12:00Z"`
	UpdatedAt          time.Time `json:"updated_at"                    example:"2031-05-20T08:12:00Z"`
} // @name AppointmentResponse

// AppointmentListResponse wraps list endpoints.
type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count" example:"1"`
} // @name AppointmentListResponse

// AvailabilityResponse is returned by GET /api/appointments/availability.
type AvailabilityResponse struct {
	Available bool                  `json:"available" example:"false"`
	Conflicts []AppointmentResponse `json:"conflicts"`
} // @name AvailabilityResponse

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error"          example:"appointment not found"`
	Code  string `json:"code,omitempty" example:"not_found"`
} // @name ErrorResponse

func toResponse(a *models.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		PatientID:          a.PatientID,
		VeterinarianID:     a.VeterinarianID,
		AppointmentDate:    a.AppointmentDate,
		EndsAt:             a.EndsAt(),
		Duration:           a.Duration,
		Status:             string(a.Status),
		Reason:             a.Reason,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CompletedNotes:     a.CompletedNotes,
		ConfirmedBy:        a.ConfirmedBy,
		StartedBy:          a.StartedBy,
		CompletedBy:        a.CompletedBy,
		CancelledBy:        a.CancelledBy,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toResponses(appts []*models.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(appts))
	for i, a := range appts {
		out[i] = toResponse(a)
	}
	return out
}

// handler carries what every appointment endpoint needs.
type handler struct {
	svc          *appsvcs.Services
	hideInternal bool
}

func (h handler) fail(w http.ResponseWriter, err error) {
	errhttp.WriteError(w, err, h.hideInternal)
}

// actor returns the acting staff member or writes a 401.
func (h handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, err := auth.ActorFromCtx(r.Context())
	if err != nil {
		httpx.JSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return "", false
	}
	return actor, true
}
