package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/swyppy/internal/models"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrCredentialsRejected):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrRegistrationFailed) && !errors.Is(err, models.ErrNetwork):
		return http.StatusConflict
	case errors.Is(err, models.ErrProfileFetch),
		errors.Is(err, models.ErrUploadFailed),
		errors.Is(err, models.ErrFetchFailed),
		errors.Is(err, models.ErrDeleteFailed),
		errors.Is(err, models.ErrUpdateFailed),
		errors.Is(err, models.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, models.Message(err), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
