package otpgate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/stores"
)

// Register validates req, rejects emails that already belong to a verified
// user, hashes the password and stages the registrant behind a register OTP.
//
// A returned handle with Delivered=false still means the registrant was
// staged; the code can be resent.
func (e *Engine) Register(ctx context.Context, req RegistrationRequest) (*ChallengeHandle, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	clean, err := e.normalizeRegistration(req)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterStaged, false, "", "", PurposeRegister, err, nil)
		return nil, err
	}

	existing, err := e.users.FindByEmail(ctx, clean.Email)
	switch {
	case err == nil && existing != nil:
		e.metricInc(MetricRegisterConflict)
		e.emitAudit(ctx, auditEventRegisterConflict, false, existing.ID, clean.Email, PurposeRegister, ErrConflict, nil)
		return nil, ErrConflict
	case err != nil && !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	hash, err := e.passwordHash.Hash(clean.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	pending := &PendingRegistrant{
		Email:        clean.Email,
		Name:         clean.Name,
		PasswordHash: hash,
		Profile:      clean.Profile,
		CreatedAt:    e.clock().UTC(),
	}

	handle, err := e.IssueOTP(ctx, clean.Email, PurposeRegister, pending)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditEventRegisterConflict, false, "", clean.Email, PurposeRegister, ErrConflict, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRegisterStaged)
	e.emitAudit(ctx, auditEventRegisterStaged, true, "", clean.Email, PurposeRegister, nil, nil)
	return handle, nil
}

// IssueOTP generates a fresh code for (email, purpose), replaces any earlier
// challenge for that pair and mails the code. For PurposeRegister, payload is
// the registrant to stage and is required; for PurposeLogin it is ignored.
//
// Store writes happen under the per-email lock. Mail is sent after the lock
// is released and its failure is reported on the handle, not as an error.
func (e *Engine) IssueOTP(ctx context.Context, email string, purpose Purpose, payload *PendingRegistrant) (*ChallengeHandle, error) {
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

	var name string
	if purpose == PurposeRegister {
		if payload == nil {
			return nil, invalid("payload", "registrant required")
		}
		if payload.PasswordHash == "" {
			return nil, invalid("password", "hash required")
		}
		name = payload.Name
	}

	return e.issue(ctx, email, purpose, payload, name)
}

// ResendOTP issues a new code for a handshake that is already in progress:
// a staged registrant for PurposeRegister, an outstanding login challenge for
// PurposeLogin. Anything else returns ErrUnknownChallenge.
func (e *Engine) ResendOTP(ctx context.Context, email string, purpose Purpose) (*ChallengeHandle, error) {
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

	var (
		payload *PendingRegistrant
		name    string
	)
	switch purpose {
	case PurposeRegister:
		rec, err := e.pending.Get(ctx, email)
		if err != nil {
			return nil, e.resendLookupError(err)
		}
		payload = pendingFromRecord(rec)
		name = payload.Name
	case PurposeLogin:
		if _, err := e.challenges.Peek(ctx, purpose.storeCode(), email); err != nil {
			return nil, e.resendLookupError(err)
		}
		if u, err := e.users.FindByEmail(ctx, email); err == nil && u != nil {
			name = u.Name
		}
	}

	handle, err := e.issue(ctx, email, purpose, payload, name)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOTPResent)
	e.emitAudit(ctx, auditEventOTPResent, true, "", email, purpose, nil, nil)
	return handle, nil
}

func (e *Engine) resendLookupError(err error) error {
	switch {
	case errors.Is(err, stores.ErrPendingNotFound),
		errors.Is(err, stores.ErrChallengeNotFound):
		return ErrUnknownChallenge
	default:
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
}

func (e *Engine) issue(ctx context.Context, email string, purpose Purpose, payload *PendingRegistrant, name string) (*ChallengeHandle, error) {
	code, err := e.newCode(e.config.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	now := e.clock()
	expiresAt := now.Add(e.config.OTP.TTL)
	record := &stores.ChallengeRecord{
		Purpose:   purpose.storeCode(),
		ExpiresAt: expiresAt.UnixMilli(),
		CodeHash:  internal.HashOTP(e.config.OTP.Pepper, string(purpose), email, code),
	}

	if err := e.storeChallenge(ctx, email, record, payload); err != nil {
		return nil, err
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, "", email, purpose, nil, func() map[string]string {
		return map[string]string{
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
			"digits":     strconv.Itoa(e.config.OTP.Digits),
		}
	})

	handle := &ChallengeHandle{
		Email:     email,
		Purpose:   purpose,
		ExpiresAt: expiresAt.Truncate(time.Millisecond),
		Delivered: true,
	}

	sendErr := e.deliver(ctx, OTPNotice{
		To:        email,
		Name:      name,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: expiresAt,
		TTL:       e.config.OTP.TTL,
	})
	if sendErr != nil {
		warning := &DeliveryWarning{Email: email, Err: sendErr}
		handle.Delivered = false
		handle.DeliveryWarning = warning

		e.metricInc(MetricOTPDeliveryFailed)
		e.emitAudit(ctx, auditEventOTPDeliveryFail, false, "", email, purpose, warning, nil)
	}

	return handle, nil
}

func (e *Engine) storeChallenge(ctx context.Context, email string, record *stores.ChallengeRecord, payload *PendingRegistrant) error {
	unlock := e.locks.Lock(email)
	defer unlock()

	if payload != nil {
		// A promotion may have finished while this registration waited.
		existing, err := e.users.FindByEmail(ctx, email)
		switch {
		case err == nil && existing != nil:
			return ErrConflict
		case err != nil && !errors.Is(err, ErrUserNotFound):
			return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
		}

		rec := pendingToRecord(payload)
		rec.Email = email
		if err := e.pending.Save(ctx, rec, e.otpLifetime()); err != nil {
			return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
		}
	}

	if err := e.challenges.Save(ctx, email, record, e.otpLifetime()); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeUnavailable, err)
	}
	return nil
}

func (e *Engine) deliver(ctx context.Context, notice OTPNotice) error {
	msg, err := e.compose(notice)
	if err != nil {
		return fmt.Errorf("compose otp mail: %w", err)
	}
	if msg.To == "" {
		msg.To = notice.To
	}
	return e.mailer.Send(ctx, msg)
}

// Subject returns the mail subject used for p.
func (p Purpose) Subject() string {
	switch p {
	case PurposeRegister:
		return "Email Verification"
	case PurposeLogin:
		return "Login Verification"
	default:
		return "Verification Code"
	}
}

// PlainTextComposer renders a short text-only OTP message. It is the default
// ComposeFunc.
func PlainTextComposer(n OTPNotice) (Mail, error) {
	var b strings.Builder
	if n.Name != "" {
		b.WriteString("Hi " + n.Name + ",\n\n")
	}
	switch n.Purpose {
	case PurposeRegister:
		b.WriteString("Use this code to verify your email address: ")
	default:
		b.WriteString("Use this code to finish signing in: ")
	}
	b.WriteString(n.Code)
	b.WriteString("\n\nThe code expires in ")
	b.WriteString(formatTTL(n.TTL))
	b.WriteString(". If you did not request it, you can ignore this message.\n")

	return Mail{
		To:      n.To,
		Subject: n.Purpose.Subject(),
		Text:    b.String(),
	}, nil
}

func formatTTL(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return strconv.Itoa(m) + " minutes"
	}
	return d.String()
}

func pendingToRecord(p *PendingRegistrant) *stores.PendingRecord {
	return &stores.PendingRecord{
		Email:        p.Email,
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Headline:     p.Profile.Headline,
		Bio:          p.Profile.Bio,
		Skills:       append([]string(nil), p.Profile.Skills...),
		Location:     p.Profile.Location,
		CreatedAt:    p.CreatedAt.UnixMilli(),
	}
}

func pendingFromRecord(rec *stores.PendingRecord) *PendingRegistrant {
	return &PendingRegistrant{
		Email:        rec.Email,
		Name:         rec.Name,
		PasswordHash: rec.PasswordHash,
		Profile: Profile{
			Headline: rec.Headline,
			Bio:      rec.Bio,
			Skills:   append([]string(nil), rec.Skills...),
			Location: rec.Location,
		},
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
	}
}
