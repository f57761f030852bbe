package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/middleware"
)

// registerRequest takes the profile fields flat, next to the credentials.
// A nested "profile" object is still accepted; flat fields win.
type registerRequest struct {
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	Password string           `json:"password"`
	Headline string           `json:"headline"`
	Bio      string           `json:"bio"`
	Skills   []string         `json:"skills"`
	Location string           `json:"location"`
	Profile  *otpgate.Profile `json:"profile"`
}

func (req registerRequest) profile() otpgate.Profile {
	var p otpgate.Profile
	if req.Profile != nil {
		p = *req.Profile
	}
	if req.Headline != "" {
		p.Headline = req.Headline
	}
	if req.Bio != "" {
		p.Bio = req.Bio
	}
	if req.Skills != nil {
		p.Skills = req.Skills
	}
	if req.Location != "" {
		p.Location = req.Location
	}
	return p
}

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resendRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type challengeResponse struct {
	Message   string    `json:"message"`
	Delivered bool      `json:"delivered"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userResponse struct {
	User *otpgate.PublicUser `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	handle, err := s.deps.Engine.Register(r.Context(), otpgate.RegistrationRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Profile:  req.profile(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logDeliveryWarning(r, handle)
	writeJSON(w, http.StatusCreated, challengeResponse{
		Message:   "Registration successful. Please verify your email",
		Delivered: handle.Delivered,
		ExpiresAt: handle.ExpiresAt,
	})
}

func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Engine.ConfirmRegistration(r.Context(), req.Email, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, userResponse{User: res.User})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	handle, err := s.deps.Engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logDeliveryWarning(r, handle)
	writeJSON(w, http.StatusOK, challengeResponse{
		Message:   "Verification code sent. Please check your email",
		Delivered: handle.Delivered,
		ExpiresAt: handle.ExpiresAt,
	})
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Engine.ConfirmLogin(r.Context(), req.Email, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, res.Token, res.ExpiresAt)
	writeJSON(w, http.StatusOK, userResponse{User: res.User})
}

// handleResend answers 200 whether or not a challenge was outstanding, so the
// endpoint cannot be used to probe for registered or pending emails.
func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	purpose := otpgate.Purpose(req.Purpose)
	if !purpose.Valid() {
		s.writeError(w, r, &otpgate.ValidationError{Field: "purpose", Reason: "must be register or login"})
		return
	}

	handle, err := s.deps.Engine.ResendOTP(r.Context(), req.Email, purpose)
	switch {
	case err == nil:
		s.logDeliveryWarning(r, handle)
	case isSilentResendError(err):
	default:
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "If a verification is pending for this email, a new code has been sent",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		s.writeError(w, r, otpgate.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logDeliveryWarning(r *http.Request, handle *otpgate.ChallengeHandle) {
	if handle == nil || handle.Delivered {
		return
	}
	s.deps.Logger.Warn(r.Context(), "otp mail not delivered",
		"purpose", string(handle.Purpose),
		"error", handle.DeliveryWarning,
	)
}
