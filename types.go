package otpgate

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/otpgate/internal/audit"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// Purpose tags what an OTP challenge authorizes.
type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeLogin    Purpose = "login"
)

func (p Purpose) Valid() bool {
	return p == PurposeRegister || p == PurposeLogin
}

func (p Purpose) storeCode() uint8 {
	switch p {
	case PurposeRegister:
		return stores.PurposeRegister
	case PurposeLogin:
		return stores.PurposeLogin
	default:
		return 0
	}
}

// Profile is the optional, public part of a user record.
type Profile struct {
	Headline string   `json:"headline,omitempty"`
	Bio      string   `json:"bio,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	Location string   `json:"location,omitempty"`
}

// User is a verified, durable identity. Email is unique and normalized.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Profile      Profile
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public returns the credential-free projection of u.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	p := u.Profile
	p.Skills = append([]string(nil), u.Profile.Skills...)
	return &PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Profile:   p,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	}
}

// PublicUser is what leaves the service: no password hash.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Profile   Profile   `json:"profile"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationRequest is the raw sign-up input. Password is plaintext here
// and never leaves Register.
type RegistrationRequest struct {
	Email    string
	Name     string
	Password string
	Profile  Profile
}

// PendingRegistrant is a staged sign-up awaiting OTP verification.
type PendingRegistrant struct {
	Email        string
	Name         string
	PasswordHash string
	Profile      Profile
	CreatedAt    time.Time
}

// ChallengeHandle describes an issued OTP. When Delivered is false,
// DeliveryWarning holds a *DeliveryWarning.
type ChallengeHandle struct {
	Email           string
	Purpose         Purpose
	ExpiresAt       time.Time
	Delivered       bool
	DeliveryWarning error
}

// VerificationResult is returned by a successful VerifyOTP.
type VerificationResult struct {
	Email      string
	Purpose    Purpose
	VerifiedAt time.Time
}

// SessionResult is the outcome of a completed handshake.
type SessionResult struct {
	User      *PublicUser
	Token     string
	ExpiresAt time.Time
}

// UserDirectory is the durable user store.
//
// Create must enforce email uniqueness atomically and return ErrConflict on a
// duplicate. Lookups return ErrUserNotFound when nothing matches.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// Mail is one outgoing message. Senders use HTML when present and fall back
// to Text.
type Mail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// MailSender delivers mail. Errors are treated as non-fatal by the engine.
type MailSender interface {
	Send(ctx context.Context, m Mail) error
}

// OTPNotice carries what a composer needs to render an OTP message.
type OTPNotice struct {
	To        string
	Name      string
	Purpose   Purpose
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// ComposeFunc renders an OTPNotice into a Mail.
type ComposeFunc func(OTPNotice) (Mail, error)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type SlogSink = internalaudit.SlogSink
