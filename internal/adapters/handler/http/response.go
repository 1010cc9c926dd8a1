package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps a service error onto a status code by its kind.
// Unclassified errors never leak their message.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeError(w, status, msg, code)
}

func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest, "VALIDATION"
	case domain.ErrNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.ErrForbidden:
		return http.StatusForbidden, "FORBIDDEN"
	case domain.ErrConflict:
		switch {
		case errors.Is(err, domain.ErrAlreadyVoted):
			return http.StatusConflict, "ALREADY_VOTED"
		case errors.Is(err, domain.ErrPollClosed):
			return http.StatusConflict, "POLL_CLOSED"
		}
		return http.StatusConflict, "CONFLICT"
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case domain.ErrTransient:
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
