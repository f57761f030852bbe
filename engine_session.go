package otpgate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IssueSession signs a session token for userID.
func (e *Engine) IssueSession(ctx context.Context, userID string) (string, time.Time, error) {
	if e == nil || e.jwtManager == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	if userID == "" {
		return "", time.Time{}, invalid("user_id", "required")
	}

	token, expiresAt, err := e.jwtManager.CreateSession(userID, e.clock())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, userID, "", "", nil, nil)
	return token, expiresAt, nil
}

// ValidateSession checks token and returns the user it names. Every token or
// lookup failure is ErrUnauthorized, except an unreachable user store.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*PublicUser, error) {
	if e == nil || e.jwtManager == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer e.metricObserve(MetricValidateLatency, start)

	if token == "" {
		e.metricInc(MetricSessionValidateFailure)
		return nil, ErrUnauthorized
	}

	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		e.metricInc(MetricSessionValidateFailure)
		return nil, ErrUnauthorized
	}

	user, err := e.users.FindByID(ctx, claims.UID)
	if err != nil {
		e.metricInc(MetricSessionValidateFailure)
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	if user == nil || !user.Verified {
		e.metricInc(MetricSessionValidateFailure)
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricSessionValidateSuccess)
	return user.Public(), nil
}
