// Package httpserver contains the HTTP handlers, sessions and middleware of
// the interview API.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps err onto the HTTP status and envelope code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusBadRequest, "NOT_READY"
	case errors.Is(err, domain.ErrNoAnswers):
		return http.StatusNotFound, "NO_ANSWERS"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusServiceUnavailable, "UPSTREAM_TIMEOUT"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrSchemaInvalid):
		return http.StatusServiceUnavailable, "SCHEMA_INVALID"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeError renders err in the error envelope. Field errors of a
// usecase.ValidationError become the details when none are given.
func writeError(w http.ResponseWriter, r *http.Request, err error, details any) {
	code, codeStr := statusOf(err)
	msg := err.Error()
	var ve *usecase.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Message
		if details == nil {
			details = ve.Fields
		}
	}
	if code == http.StatusConflict {
		w.Header().Set("Retry-After", "1")
	}
	if code == http.StatusInternalServerError {
		// internal details stay in the logs
		LoggerFrom(r).Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		msg = "internal error"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: msg, Details: details}})
}
