package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/internal/logging"
	"github.com/MrEthical07/otpgate/middleware"
)

// Engine is the part of *otpgate.Engine the HTTP surface calls.
type Engine interface {
	middleware.SessionValidator

	Register(ctx context.Context, req otpgate.RegistrationRequest) (*otpgate.ChallengeHandle, error)
	ConfirmRegistration(ctx context.Context, email, code string) (*otpgate.SessionResult, error)
	Login(ctx context.Context, email, password string) (*otpgate.ChallengeHandle, error)
	ConfirmLogin(ctx context.Context, email, code string) (*otpgate.SessionResult, error)
	ResendOTP(ctx context.Context, email string, purpose otpgate.Purpose) (*otpgate.ChallengeHandle, error)
	SessionTTL() time.Duration
}

// ServerDeps are the dependencies for the server. Metrics is optional and
// mounted at GET /metrics when set.
type ServerDeps struct {
	Logger  logging.Logger
	Engine  Engine
	Metrics http.Handler
}

type Server struct {
	deps *ServerDeps
	mux  *http.ServeMux
}

func NewServer(deps *ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /register/verify-otp", s.handleRegisterVerify)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /login/verify-otp", s.handleLoginVerify)
	s.mux.HandleFunc("POST /otp/resend", s.handleResend)
	s.mux.HandleFunc("GET /logout", s.handleLogout)
	s.mux.Handle("GET /me", middleware.Guard(deps.Engine)(http.HandlerFunc(s.handleMe)))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", deps.Metrics)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := otpgate.WithClientIP(r.Context(), clientIP(r))
	ctx = otpgate.WithUserAgent(ctx, r.UserAgent())
	s.mux.ServeHTTP(w, r.WithContext(ctx))
}
