package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/otpgate"
)

type errorBody struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError maps engine errors to responses. Anything unrecognized is
// logged and reported as a bare 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *otpgate.ValidationError

	switch {
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "malformed request body"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: verr.Error(), Field: verr.Field})
	case errors.Is(err, otpgate.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Message: "email already registered"})
	case errors.Is(err, otpgate.ErrExpiredChallenge):
		writeJSON(w, http.StatusGone, errorBody{Message: "code expired, request a new one"})
	case errors.Is(err, otpgate.ErrUnknownChallenge),
		errors.Is(err, otpgate.ErrInvalidOTP):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "invalid or incorrect code"})
	case errors.Is(err, otpgate.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "invalid email or password"})
	case errors.Is(err, otpgate.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "unauthorized"})
	default:
		s.deps.Logger.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
	}
}

// isSilentResendError reports errors that the resend endpoint hides behind
// its uniform 200.
func isSilentResendError(err error) bool {
	return errors.Is(err, otpgate.ErrUnknownChallenge) ||
		errors.Is(err, otpgate.ErrValidation)
}
