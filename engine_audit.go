package otpgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/otpgate/internal/stores"
)

const (
	auditEventRegisterStaged   = "register_staged"
	auditEventRegisterConflict = "register_conflict"
	auditEventOTPIssued        = "otp_issued"
	auditEventOTPResent        = "otp_resent"
	auditEventOTPDeliveryFail  = "otp_delivery_failed"
	auditEventOTPVerifySuccess = "otp_verify_success"
	auditEventOTPVerifyFailure = "otp_verify_failure"
	auditEventPromoteSuccess   = "promote_success"
	auditEventPromoteFailure   = "promote_failure"
	auditEventLoginPassword    = "login_password"
	auditEventSessionIssued    = "session_issued"
)

// AuditErrorCode is the stable, coarse reason attached to failed audit events.
type AuditErrorCode string

const (
	auditErrValidation        AuditErrorCode = "validation"
	auditErrConflict          AuditErrorCode = "conflict"
	auditErrUnknownChallenge  AuditErrorCode = "unknown_challenge"
	auditErrExpiredChallenge  AuditErrorCode = "expired_challenge"
	auditErrAttemptsExceeded  AuditErrorCode = "attempts_exceeded"
	auditErrInvalidOTP        AuditErrorCode = "invalid_otp"
	auditErrInvalidCredential AuditErrorCode = "invalid_credentials"
	auditErrUnauthorized      AuditErrorCode = "unauthorized"
	auditErrDelivery          AuditErrorCode = "delivery_failed"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	purpose Purpose,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Purpose:   string(purpose),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrUnknownChallenge):
		return auditErrUnknownChallenge
	case errors.Is(err, ErrExpiredChallenge):
		return auditErrExpiredChallenge
	case errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredential
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrDeliveryWarning):
		return auditErrDelivery
	case errors.Is(err, ErrChallengeUnavailable),
		errors.Is(err, ErrUserStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
