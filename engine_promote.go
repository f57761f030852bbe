package otpgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/google/uuid"
)

// ConfirmRegistration finishes a sign-up: it verifies the register code,
// promotes the staged registrant and issues a session for the new user.
// The consume and the promotion run under one hold of the email lock, so a
// registration resubmitted in between cannot swap the staged credentials.
func (e *Engine) ConfirmRegistration(ctx context.Context, email, code string) (*SessionResult, error) {
	if e == nil || e.challenges == nil || e.pending == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	unlock := e.locks.Lock(email)
	_, err = e.verifyLocked(ctx, email, PurposeRegister, code)
	if err != nil {
		unlock()
		e.metricObserve(MetricVerifyLatency, start)
		e.recordVerify(ctx, email, PurposeRegister, err)
		return nil, err
	}
	user, err := e.promoteLocked(ctx, email)
	unlock()

	e.metricObserve(MetricVerifyLatency, start)
	e.recordVerify(ctx, email, PurposeRegister, nil)
	e.recordPromote(ctx, email, user, err)
	if err != nil {
		return nil, err
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

// Promote turns the staged registrant for email into a verified user and
// drops the staging record. It must only be called after a successful
// VerifyOTP for PurposeRegister.
//
// When two promotions race for the same email exactly one creates the user;
// the other gets ErrConflict.
func (e *Engine) Promote(ctx context.Context, email string) (*User, error) {
	if e == nil || e.pending == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(email)
	user, err := e.promoteLocked(ctx, email)
	unlock()

	e.recordPromote(ctx, email, user, err)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (e *Engine) recordPromote(ctx context.Context, email string, user *User, err error) {
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.metricInc(MetricPromoteConflict)
		}
		e.emitAudit(ctx, auditEventPromoteFailure, false, "", email, PurposeRegister, err, nil)
		return
	}
	e.metricInc(MetricPromoteSuccess)
	e.emitAudit(ctx, auditEventPromoteSuccess, true, user.ID, email, PurposeRegister, nil, nil)
}

func (e *Engine) promoteLocked(ctx context.Context, email string) (*User, error) {
	rec, err := e.pending.Get(ctx, email)
	if err != nil {
		if !errors.Is(err, stores.ErrPendingNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
		}
		// A promotion that lost the race finds the staging record gone and
		// the user already present.
		existing, findErr := e.users.FindByEmail(ctx, email)
		switch {
		case findErr == nil && existing != nil:
			return nil, ErrConflict
		case findErr != nil && !errors.Is(findErr, ErrUserNotFound):
			return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, findErr)
		}
		return nil, ErrUnknownChallenge
	}

	staged := pendingFromRecord(rec)
	now := e.clock().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         staged.Name,
		PasswordHash: staged.PasswordHash,
		Profile:      staged.Profile,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	createErr := e.users.Create(ctx, user)
	if createErr != nil && !errors.Is(createErr, ErrConflict) {
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, createErr)
	}

	// Conflict is terminal for this attempt, so the staging record goes
	// either way. A failed delete is left to the staging TTL.
	_ = e.pending.Delete(ctx, email)

	if createErr != nil {
		return nil, ErrConflict
	}
	return user, nil
}
