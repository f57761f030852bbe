package otpgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// VerifyOTP checks code against the outstanding challenge for
// (email, purpose) and consumes it on success.
//
// Errors:
//   - ErrUnknownChallenge: nothing outstanding (never issued, consumed, or
//     locked after too many misses)
//   - ErrExpiredChallenge: the window passed, whether or not code matches
//   - ErrInvalidOTP: wrong or malformed code; only a well-formed wrong code
//     counts against MaxAttempts
func (e *Engine) VerifyOTP(ctx context.Context, email string, purpose Purpose, code string) (*VerificationResult, error) {
	if e == nil || e.challenges == nil {
		return nil, ErrEngineNotReady
	}
	if !purpose.Valid() {
		return nil, invalid("purpose", "unsupported")
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer e.metricObserve(MetricVerifyLatency, start)

	unlock := e.locks.Lock(email)
	res, err := e.verifyLocked(ctx, email, purpose, code)
	unlock()

	e.recordVerify(ctx, email, purpose, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) recordVerify(ctx context.Context, email string, purpose Purpose, err error) {
	if err != nil {
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", email, purpose, err, nil)
		return
	}
	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, "", email, purpose, nil, nil)
}

func (e *Engine) verifyLocked(ctx context.Context, email string, purpose Purpose, code string) (*VerificationResult, error) {
	code, ok := normalizeCode(code, e.config.OTP.Digits)
	if !ok {
		e.metricInc(MetricOTPVerifyInvalid)
		return nil, ErrInvalidOTP
	}

	now := e.clock()
	hash := internal.HashOTP(e.config.OTP.Pepper, string(purpose), email, code)

	_, err := e.challenges.Consume(ctx, purpose.storeCode(), email, hash, e.config.OTP.MaxAttempts, now)
	if err != nil {
		return nil, e.mapConsumeError(err)
	}

	return &VerificationResult{
		Email:      email,
		Purpose:    purpose,
		VerifiedAt: now.UTC(),
	}, nil
}

func (e *Engine) mapConsumeError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound):
		e.metricInc(MetricOTPVerifyUnknown)
		return ErrUnknownChallenge
	case errors.Is(err, stores.ErrChallengeExpired):
		e.metricInc(MetricOTPVerifyExpired)
		return ErrExpiredChallenge
	case errors.Is(err, stores.ErrChallengeMismatch):
		e.metricInc(MetricOTPVerifyInvalid)
		return ErrInvalidOTP
	case errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		e.metricInc(MetricOTPAttemptsExceeded)
		return fmt.Errorf("%w: %w", ErrInvalidOTP, stores.ErrChallengeAttemptsExceeded)
	default:
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
}
