package httpapi

import (
	"errors"
	"net/http"

	"melodyhub/internal/app/music"
	"melodyhub/internal/app/users"
	"melodyhub/internal/auth"
	"melodyhub/internal/logging"
	"melodyhub/internal/store"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, users.ErrInvalidInput),
		errors.Is(err, music.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, users.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrNotFound),
		errors.Is(err, music.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrEmailTaken),
		errors.Is(err, music.ErrAlreadyInPlaylist),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// clientErrors carry messages written for API clients.
var clientErrors = []error{
	users.ErrInvalidInput,
	users.ErrEmailTaken,
	users.ErrInvalidCredentials,
	users.ErrNotFound,
	music.ErrInvalidInput,
	music.ErrNotFound,
	music.ErrAlreadyInPlaylist,
	auth.ErrUnauthorized,
}

// clientMessage is the error text sent with a 4xx status. Storage errors that
// reach here unmapped get a fixed message; their detail stays in the log.
func clientMessage(err error) (string, bool) {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return err.Error(), true
		}
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return "resource already exists", false
	case errors.Is(err, store.ErrNotFound):
		return "not found", false
	case errors.Is(err, store.ErrInvalidPage):
		return "invalid page", false
	default:
		return http.StatusText(statusFor(err)), false
	}
}

// writeError reports err to the client. Internal failures are logged and
// answered with an opaque message carrying the request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context(), s.logger)

	status := statusFor(err)
	if status != http.StatusInternalServerError {
		msg, known := clientMessage(err)
		if !known {
			logger.Warn().
				Err(err).
				Int("status", status).
				Str("path", r.URL.Path).
				Msg("unmapped storage error")
		}
		writeJSON(w, status, errorResponse{Error: msg})
		return
	}

	logger.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	writeJSON(w, status, errorResponse{
		Error:     "internal server error",
		RequestID: logging.RequestID(r.Context()),
	})
}
