package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/otpgate"
)

// SessionValidator is the part of *otpgate.Engine the guard needs.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*otpgate.PublicUser, error)
	CookieConfig() otpgate.CookieConfig
}

type userContextKey struct{}

// UserFromContext returns the user stored by Guard.
func UserFromContext(ctx context.Context) (*otpgate.PublicUser, bool) {
	u, ok := ctx.Value(userContextKey{}).(*otpgate.PublicUser)
	return u, ok && u != nil
}

// WithUser stores u the way Guard does. Useful for handler tests.
func WithUser(ctx context.Context, u *otpgate.PublicUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// Guard rejects requests without a valid session with a uniform 401. The
// token is taken from the session cookie, or from an Authorization Bearer
// header when no cookie is present.
func Guard(engine SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := sessionToken(r, engine.CookieConfig().Name)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, otpgate.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"message":"` + msg + `"}` + "\n"))
}
