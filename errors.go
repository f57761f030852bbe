package otpgate

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when the email already belongs to a verified user.
	ErrConflict = errors.New("email already registered")
	// ErrUnknownChallenge means no active OTP exists for the (email, purpose)
	// pair: never issued, already consumed, or locked after too many misses.
	ErrUnknownChallenge = errors.New("no active otp challenge")
	// ErrExpiredChallenge is returned once the OTP window has passed, even when
	// the submitted code matches.
	ErrExpiredChallenge = errors.New("otp challenge expired")
	// ErrInvalidOTP is returned when the submitted code does not match.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized covers every session token failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDeliveryWarning matches every *DeliveryWarning.
	ErrDeliveryWarning = errors.New("otp delivery failed")

	// ErrUserNotFound is returned by UserDirectory lookups that find nothing.
	ErrUserNotFound = errors.New("user not found")

	ErrChallengeUnavailable = errors.New("otp challenge backend unavailable")
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	ErrEngineNotReady       = errors.New("engine not initialized")
)

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DeliveryWarning is attached to a ChallengeHandle when the challenge was
// stored but the mail could not be sent. The code stays valid; the caller
// should offer a resend.
type DeliveryWarning struct {
	Email string
	Err   error
}

func (w *DeliveryWarning) Error() string {
	return "otp delivery to " + w.Email + " failed: " + w.Err.Error()
}

func (w *DeliveryWarning) Unwrap() error {
	return w.Err
}

func (w *DeliveryWarning) Is(target error) bool {
	return target == ErrDeliveryWarning
}
