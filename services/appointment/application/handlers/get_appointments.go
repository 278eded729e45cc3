package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vetbook/appointments/pkg/httpx"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

const defaultUpcomingDays = 7

// GetAppointmentHandler handles GET /api/appointments/{id}.
type GetAppointmentHandler struct {
	handler
}

func NewGetAppointmentHandler(svc *appsvcs.Services, hideInternal bool) *GetAppointmentHandler {
	return &GetAppointmentHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute returns one appointment.
//
//	@Summary	Get appointment
//	@Tags		appointments
//	@Produce	json
//	@Param		id	path		string	true	"Appointment ID"
//	@Success	200	{object}	AppointmentResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/appointments/{id} [get]
func (h *GetAppointmentHandler) Execute(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Appointment.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(appt))
}

// ListAppointmentsHandler handles GET /api/appointments.
type ListAppointmentsHandler struct {
	handler
}

func NewListAppointmentsHandler(svc *appsvcs.Services, hideInternal bool) *ListAppointmentsHandler {
	return &ListAppointmentsHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute lists appointments by exactly one selector: veterinarian, client or date range.
//
//	@Summary		List appointments
//	@Description	Veterinarian and client history is newest first; a date range [from, to) is oldest first
//	@Tags			appointments
//	@Produce		json
//	@Param			veterinarian_id	query		string	false	"Veterinarian ID"
//	@Param			client_id		query		string	false	"Client ID"
//	@Param			from			query		string	false	"Range start, RFC 3339"
//	@Param			to				query		string	false	"Range end (exclusive), RFC 3339"
//	@Success		200				{object}	AppointmentListResponse
//	@Failure		400				{object}	ErrorResponse
//	@Router			/appointments [get]
func (h *ListAppointmentsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vet, client := q.Get("veterinarian_id"), q.Get("client_id")
	from, to := q.Get("from"), q.Get("to")

	selectors := 0
	for _, set := range []bool{vet != "", client != "", from != "" || to != ""} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: "exactly one of veterinarian_id, client_id or from/to is required"})
		return
	}

	var (
		appts []*models.Appointment
		err   error
	)
	switch {
	case vet != "":
		appts, err = h.svc.Appointment.ListByVeterinarian(r.Context(), vet)
	case client != "":
		appts, err = h.svc.Appointment.ListByClient(r.Context(), client)
	default:
		var fromT, toT time.Time
		if fromT, err = parseTime("from", from); err != nil {
			httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if toT, err = parseTime("to", to); err != nil {
			httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		appts, err = h.svc.Appointment.ListByDateRange(r.Context(), fromT, toT)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AppointmentListResponse{Appointments: toResponses(appts), Count: len(appts)})
}

// GetUpcomingHandler handles GET /api/appointments/upcoming.
type GetUpcomingHandler struct {
	handler
}

func NewGetUpcomingHandler(svc *appsvcs.Services, hideInternal bool) *GetUpcomingHandler {
	return &GetUpcomingHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute lists non-terminal appointments starting within the next days days.
//
//	@Summary	Upcoming appointments
//	@Tags		appointments
//	@Produce	json
//	@Param		days	query		int	false	"Window in days (default 7, max 365)"
//	@Success	200		{object}	AppointmentListResponse
//	@Failure	400		{object}	ErrorResponse
//	@Router		/appointments/upcoming [get]
func (h *GetUpcomingHandler) Execute(w http.ResponseWriter, r *http.Request) {
	days := defaultUpcomingDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: "days must be an integer"})
			return
		}
		days = n
	}

	appts, err := h.svc.Appointment.GetUpcoming(r.Context(), days)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AppointmentListResponse{Appointments: toResponses(appts), Count: len(appts)})
}

// GetAvailabilityHandler handles GET /api/appointments/availability.
type GetAvailabilityHandler struct {
	handler
}

func NewGetAvailabilityHandler(svc *appsvcs.Services, hideInternal bool) *GetAvailabilityHandler {
	return &GetAvailabilityHandler{handler{svc: svc, hideInternal: hideInternal}}
}

// Execute reports whether a veterinarian is free for a slot.
//
//	@Summary	Check availability
//	@Tags		appointments
//	@Produce	json
//	@Param		veterinarian_id	query		string	true	"Veterinarian ID"
//	@Param		start			query		string	true	"Slot start, RFC 3339"
//	@Param		duration		query		int		true	"Slot length in minutes"
//	@Success	200				{object}	AvailabilityResponse
//	@Failure	400				{object}	ErrorResponse
//	@Router		/appointments/availability [get]
func (h *GetAvailabilityHandler) Execute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime("start", q.Get("start"))
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil {
		httpx.JSON(w, http.StatusBadRequest, ErrorResponse{Error: "duration must be an integer"})
		return
	}

	res, err := h.svc.Appointment.CheckAvailability(r.Context(), q.Get("veterinarian_id"), start, duration)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, AvailabilityResponse{Available: res.Available, Conflicts: toResponses(res.Conflicts)})
}

func parseTime(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}
