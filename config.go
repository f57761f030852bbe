package otpgate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/password"
)

// Config is the full engine configuration. Start from DefaultConfig and set
// at least Session.PrivateKey.
type Config struct {
	OTP      OTPConfig
	Session  SessionConfig
	Password PasswordConfig
	Cookie   CookieConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code generation and verification.
//
// ExpiredGrace keeps a stale challenge around after TTL so a late attempt is
// reported as expired rather than unknown. Pepper keys the code hash; when
// empty it is derived from the session signing key.
type OTPConfig struct {
	Digits       int
	TTL          time.Duration
	ExpiredGrace time.Duration
	MaxAttempts  int
	Pepper       []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the session cookie written by the HTTP layer.
// Secure should only be disabled for plain-HTTP local development.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

/*
====================================
STORE CONFIG
====================================
*/

type StoreConfig struct {
	ChallengePrefix string
	PendingPrefix   string
}

/*
====================================
AUDIT + METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a 6-digit, 5-minute OTP with 5 attempts and a 24h
// HS256 session. The signing key is left empty.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Digits:       6,
			TTL:          5 * time.Minute,
			ExpiredGrace: 15 * time.Minute,
			MaxAttempts:  5,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "otpgate",
		},
		Password: PasswordConfig{
			Memory:           64 * 1024,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
		},
		Cookie: CookieConfig{
			Name:     "jwt",
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		Store: StoreConfig{
			ChallengePrefix: "otp",
			PendingPrefix:   "pending",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OTP.Pepper = cloneBytes(cfg.OTP.Pepper)
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.ExpiredGrace < 0 {
		return errors.New("OTP ExpiredGrace must be >= 0")
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.MaxAttempts > 1000 {
		return errors.New("OTP MaxAttempts must be between 1 and 1000")
	}
	if len(c.OTP.Pepper) > 0 && len(c.OTP.Pepper) < internal.MinPepperBytes {
		return fmt.Errorf("OTP Pepper must be at least %d bytes", internal.MinPepperBytes)
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TTL > 30*24*time.Hour {
		return errors.New("Session TTL must be <= 30 days")
	}
	switch c.Session.SigningMethod {
	case "hs256":
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 || len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported session signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes != 0 && c.Password.MaxPasswordBytes < password.MinPasswordBytes {
		return errors.New("Password MaxPasswordBytes is below the minimum password length")
	}

	// Cookie
	if c.Cookie.Name == "" || strings.ContainsAny(c.Cookie.Name, " \t\r\n;,=") {
		return errors.New("Cookie Name must be a valid cookie token")
	}
	if c.Cookie.Path == "" || !strings.HasPrefix(c.Cookie.Path, "/") {
		return errors.New("Cookie Path must start with /")
	}
	switch c.Cookie.SameSite {
	case http.SameSiteDefaultMode, http.SameSiteLaxMode, http.SameSiteStrictMode:
	case http.SameSiteNoneMode:
		if !c.Cookie.Secure {
			return errors.New("SameSite=None requires Secure cookies")
		}
	default:
		return errors.New("Cookie SameSite is invalid")
	}

	// Store
	if c.Store.ChallengePrefix == "" || c.Store.PendingPrefix == "" {
		return errors.New("Store prefixes must be set")
	}
	if c.Store.ChallengePrefix == c.Store.PendingPrefix {
		return errors.New("Store prefixes must differ")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
