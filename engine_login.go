package otpgate

import (
	"context"
	"errors"
	"fmt"
)

// Login checks the password and, when it matches, mails a login code. The
// session is only issued by ConfirmLogin.
func (e *Engine) Login(ctx context.Context, email, password string) (*ChallengeHandle, error) {
	user, err := e.VerifyPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return e.issue(ctx, user.Email, PurposeLogin, nil, user.Name)
}

// ConfirmLogin verifies the login code for email and issues a session.
// A wrong code leaves the user record untouched.
func (e *Engine) ConfirmLogin(ctx context.Context, email, code string) (*SessionResult, error) {
	res, err := e.VerifyOTP(ctx, email, PurposeLogin, code)
	if err != nil {
		return nil, err
	}

	user, err := e.users.FindByEmail(ctx, res.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	token, expiresAt, err := e.IssueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &SessionResult{
		User:      user.Public(),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyPassword returns the user for email when password matches its stored
// hash. Unknown emails and wrong passwords both yield ErrInvalidCredentials
// and cost the same argon2 work.
func (e *Engine) VerifyPassword(ctx context.Context, email, password string) (*User, error) {
	if e == nil || e.users == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	hash := e.dummyHash
	if user != nil && err == nil {
		hash = user.PasswordHash
	}

	ok, verr := e.passwordHash.Verify(password, hash)
	if verr != nil || !ok || user == nil || err != nil {
		e.metricInc(MetricLoginPasswordFailure)
		e.emitAudit(ctx, auditEventLoginPassword, false, "", email, PurposeLogin, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	e.metricInc(MetricLoginPasswordSuccess)
	e.emitAudit(ctx, auditEventLoginPassword, true, user.ID, email, PurposeLogin, nil, nil)
	return user, nil
}
