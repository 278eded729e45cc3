// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to classify for each new error kind.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/vetbook/appointments/pkg/httpx"
	"github.com/vetbook/appointments/services/appointment/domain"
)

// Codes carried in the "code" field of error responses.
const (
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeSlotUnavailable   = "slot_unavailable"
	CodeInvalidTransition = "invalid_transition"
	CodeValidation        = "validation_failed"
	CodeInternal          = "internal"
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Unrecognized errors become 500; their text is hidden when hideInternal is set.
func WriteError(w http.ResponseWriter, err error, hideInternal bool) {
	status, code := classify(err)
	httpx.JSONErrorCode(w, status, code, httpx.SafeError(err, status, hideInternal))
}

// classify checks the specific validation kinds before ErrValidation, which
// they all wrap.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAppointmentNotFound):
		return http.StatusNotFound, CodeNotFound // 404
	case errors.Is(err, domain.ErrAppointmentConflict):
		return http.StatusConflict, CodeConflict // 409
	case errors.Is(err, domain.ErrSlotUnavailable):
		return http.StatusBadRequest, CodeSlotUnavailable
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusBadRequest, CodeInvalidTransition
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, CodeValidation // 400
	default:
		return http.StatusInternalServerError, CodeInternal // 500
	}
}
