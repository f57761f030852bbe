package otpgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate/internal/stores"
)

func TestRegisterStagesAndMailsCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("123456")
	before := time.Now()
	handle, err := env.engine.Register(ctx, testRegistration("  Alice@Example.COM "))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if handle.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", handle.Email)
	}
	if handle.Purpose != PurposeRegister || !handle.Delivered || handle.DeliveryWarning != nil {
		t.Fatalf("unexpected handle: %+v", handle)
	}
	if handle.ExpiresAt.Before(before.Add(5*time.Minute-time.Second)) || handle.ExpiresAt.After(time.Now().Add(5*time.Minute)) {
		t.Fatalf("expected expiry about 5m out, got %v", handle.ExpiresAt)
	}

	msg, ok := env.mailer.last()
	if !ok {
		t.Fatal("expected a mail to be sent")
	}
	if msg.To != "alice@example.com" || msg.Subject != "Email Verification" {
		t.Fatalf("unexpected mail header: to=%q subject=%q", msg.To, msg.Subject)
	}
	if !strings.Contains(msg.Text, "123456") {
		t.Fatal("expected mail body to carry the code")
	}

	rec, err := env.engine.pending.Get(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("expected staged registrant: %v", err)
	}
	if rec.PasswordHash == "" || rec.PasswordHash == "correct-horse" {
		t.Fatal("staged password must be hashed")
	}
	if env.users.count() != 0 {
		t.Fatal("no user may exist before verification")
	}
}

func TestRegisterRejectsExistingUser(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env, "bob@example.com")
	sent := env.mailer.count()

	_, err := env.engine.Register(context.Background(), testRegistration("BOB@example.com"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if env.mailer.count() != sent {
		t.Fatal("conflicting registration must not send mail")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegisterConflict]; got != 1 {
		t.Fatalf("expected 1 register conflict, got %d", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name  string
		edit  func(*RegistrationRequest)
		field string
	}{
		{"empty email", func(r *RegistrationRequest) { r.Email = "" }, "email"},
		{"malformed email", func(r *RegistrationRequest) { r.Email = "not-an-email" }, "email"},
		{"display name email", func(r *RegistrationRequest) { r.Email = "Alice <a@example.com>" }, "email"},
		{"short name", func(r *RegistrationRequest) { r.Name = " al " }, "name"},
		{"short password", func(r *RegistrationRequest) { r.Password = "12345" }, "password"},
		{"long password", func(r *RegistrationRequest) { r.Password = strings.Repeat("p", 513) }, "password"},
		{"long headline", func(r *RegistrationRequest) { r.Profile.Headline = strings.Repeat("h", 121) }, "headline"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testRegistration("val@example.com")
			tc.edit(&req)

			_, err := env.engine.Register(context.Background(), req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}

	if env.mailer.count() != 0 {
		t.Fatal("invalid registrations must not send mail")
	}
}

func TestConfirmRegistrationCreatesVerifiedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := registerUser(t, env, "carol@example.com")
	if res.Token == "" || res.User == nil {
		t.Fatalf("expected session result, got %+v", res)
	}
	if !res.User.Verified || res.User.Email != "carol@example.com" || res.User.Name != "Alice Example" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if got := res.User.Profile.Skills; len(got) != 2 || got[0] != "go" || got[1] != "redis" {
		t.Fatalf("expected normalized skills, got %v", got)
	}

	if _, err := env.engine.pending.Get(ctx, "carol@example.com"); !errors.Is(err, stores.ErrPendingNotFound) {
		t.Fatalf("expected staging record removed, got %v", err)
	}

	stored, err := env.users.FindByEmail(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	ok, err := env.engine.passwordHash.Verify("correct-horse", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash should verify the original password: ok=%v err=%v", ok, err)
	}

	me, err := env.engine.ValidateSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if me.ID != stored.ID {
		t.Fatalf("session names %q, want %q", me.ID, stored.ID)
	}
}

func TestVerifiedCodeCannotBeReplayed(t *testing.T) {
	env := newTestEnv(t, nil)
	registerUser(t, env, "dave@example.com")

	_, err := env.engine.ConfirmRegistration(context.Background(), "dave@example.com", "424242")
	if !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected ErrUnknownChallenge on replay, got %v", err)
	}
	if env.users.count() != 1 {
		t.Fatalf("replay must not create users, have %d", env.users.count())
	}
}

func TestResendInvalidatesPreviousCode(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("111111")
	if _, err := env.engine.Register(ctx, testRegistration("erin@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	env.nextCode("222222")
	handle, err := env.engine.ResendOTP(ctx, "erin@example.com", PurposeRegister)
	if err != nil {
		t.Fatalf("ResendOTP failed: %v", err)
	}
	if !handle.Delivered {
		t.Fatal("expected resend to be delivered")
	}
	if msg, _ := env.mailer.last(); !strings.Contains(msg.Text, "222222") || !strings.Contains(msg.Text, "Alice Example") {
		t.Fatal("expected resent mail with the new code and the staged name")
	}

	if _, err := env.engine.VerifyOTP(ctx, "erin@example.com", PurposeRegister, "111111"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected old code to fail with ErrInvalidOTP, got %v", err)
	}
	if _, err := env.engine.ConfirmRegistration(ctx, "erin@example.com", "222222"); err != nil {
		t.Fatalf("expected new code to succeed, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricOTPResent]; got != 1 {
		t.Fatalf("expected 1 resend, got %d", got)
	}
}

func TestReRegisterReplacesStagedRegistrant(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("111111")
	if _, err := env.engine.Register(ctx, testRegistration("fay@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	second := testRegistration("fay@example.com")
	second.Name = "Fay Second"
	env.nextCode("333333")
	if _, err := env.engine.Register(ctx, second); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	if _, err := env.engine.VerifyOTP(ctx, "fay@example.com", PurposeRegister, "111111"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected first code to be dead, got %v", err)
	}
	res, err := env.engine.ConfirmRegistration(ctx, "fay@example.com", "333333")
	if err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	if res.User.Name != "Fay Second" {
		t.Fatalf("expected latest staged name, got %q", res.User.Name)
	}
}

func TestResendWithoutHandshakeIsUnknown(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, p := range []Purpose{PurposeRegister, PurposeLogin} {
		if _, err := env.engine.ResendOTP(ctx, "ghost@example.com", p); !errors.Is(err, ErrUnknownChallenge) {
			t.Fatalf("%s: expected ErrUnknownChallenge, got %v", p, err)
		}
	}
	if env.mailer.count() != 0 {
		t.Fatal("no mail may be sent for unknown handshakes")
	}
}

func TestMailFailureKeepsChallengeUsable(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.mailer.err = errors.New("smtp down")

	env.nextCode("555555")
	handle, err := env.engine.Register(ctx, testRegistration("gus@example.com"))
	if err != nil {
		t.Fatalf("Register must not fail on mail errors: %v", err)
	}
	if handle.Delivered {
		t.Fatal("expected Delivered=false")
	}
	if !errors.Is(handle.DeliveryWarning, ErrDeliveryWarning) {
		t.Fatalf("expected DeliveryWarning, got %v", handle.DeliveryWarning)
	}
	var warning *DeliveryWarning
	if !errors.As(handle.DeliveryWarning, &warning) || warning.Email != "gus@example.com" {
		t.Fatalf("expected *DeliveryWarning for gus, got %v", handle.DeliveryWarning)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricOTPDeliveryFailed]; got != 1 {
		t.Fatalf("expected 1 delivery failure, got %d", got)
	}

	if _, err := env.engine.ConfirmRegistration(ctx, "gus@example.com", "555555"); err != nil {
		t.Fatalf("undelivered code should still verify: %v", err)
	}
}

func TestExpiredCodeFailsEvenWhenCorrect(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	now := time.Now()
	env.engine.now = func() time.Time { return now }

	env.nextCode("777777")
	if _, err := env.engine.Register(ctx, testRegistration("hal@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	env.engine.now = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	_, err := env.engine.VerifyOTP(ctx, "hal@example.com", PurposeRegister, "777777")
	if !errors.Is(err, ErrExpiredChallenge) {
		t.Fatalf("expected ErrExpiredChallenge, got %v", err)
	}
	if env.users.count() != 0 {
		t.Fatal("expired code must not promote")
	}

	_, err = env.engine.VerifyOTP(ctx, "hal@example.com", PurposeRegister, "777777")
	if !errors.Is(err, ErrExpiredChallenge) {
		t.Fatalf("expected a retry to keep reporting expiry, got %v", err)
	}
}

func TestWrongCodesThenCorrectSucceeds(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("246810")
	if _, err := env.engine.Register(ctx, testRegistration("ivy@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := env.engine.ConfirmRegistration(ctx, "ivy@example.com", "000000"); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d: expected ErrInvalidOTP, got %v", i+1, err)
		}
		if env.users.count() != 0 {
			t.Fatal("wrong code must not create a user")
		}
	}

	rec, err := env.engine.challenges.Peek(ctx, PurposeRegister.storeCode(), "ivy@example.com")
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if rec.Attempts != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", rec.Attempts)
	}

	if _, err := env.engine.ConfirmRegistration(ctx, "ivy@example.com", "246810"); err != nil {
		t.Fatalf("correct code after misses should succeed: %v", err)
	}
}

func TestAttemptsExhaustedLocksChallenge(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.OTP.MaxAttempts = 3 })
	ctx := context.Background()

	env.nextCode("135790")
	if _, err := env.engine.Register(ctx, testRegistration("jon@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := env.engine.VerifyOTP(ctx, "jon@example.com", PurposeRegister, "000000")
		if !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("attempt %d: expected ErrInvalidOTP, got %v", i+1, err)
		}
	}

	_, err := env.engine.VerifyOTP(ctx, "jon@example.com", PurposeRegister, "135790")
	if !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected ErrUnknownChallenge after exhaustion, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricOTPAttemptsExceeded]; got != 1 {
		t.Fatalf("expected 1 attempts-exceeded, got %d", got)
	}
}

func TestMalformedCodeIsNotCounted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("864209")
	if _, err := env.engine.Register(ctx, testRegistration("kim@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		if _, err := env.engine.VerifyOTP(ctx, "kim@example.com", PurposeRegister, code); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("code %q: expected ErrInvalidOTP, got %v", code, err)
		}
	}

	rec, err := env.engine.challenges.Peek(ctx, PurposeRegister.storeCode(), "kim@example.com")
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if rec.Attempts != 0 {
		t.Fatalf("malformed codes must not count, got %d attempts", rec.Attempts)
	}

	if _, err := env.engine.VerifyOTP(ctx, "kim@example.com", PurposeRegister, " 864209 "); err != nil {
		t.Fatalf("surrounding whitespace should be ignored: %v", err)
	}
}

func TestConcurrentPromotionCreatesOneUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, testRegistration("lee@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Promote(ctx, "lee@example.com")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected promote error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, successes, conflicts)
	}
	if env.users.count() != 1 {
		t.Fatalf("expected exactly one user, got %d", env.users.count())
	}
	if env.engine.locks.Len() != 0 {
		t.Fatalf("expected lock table to drain, have %d entries", env.engine.locks.Len())
	}
}

func TestPromoteWithoutStagingIsUnknown(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Promote(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrUnknownChallenge) {
		t.Fatalf("expected ErrUnknownChallenge, got %v", err)
	}
}

func TestPromoteConflictDropsStaging(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("112233")
	if _, err := env.engine.Register(ctx, testRegistration("max@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Another instance finished the same sign-up first.
	if err := env.users.Create(ctx, &User{ID: "other", Email: "max@example.com", Verified: true}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	_, err := env.engine.ConfirmRegistration(ctx, "max@example.com", "112233")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := env.engine.pending.Get(ctx, "max@example.com"); !errors.Is(err, stores.ErrPendingNotFound) {
		t.Fatalf("expected staging record dropped on conflict, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPromoteConflict]; got != 1 {
		t.Fatalf("expected 1 promote conflict, got %d", got)
	}
}

func TestIssueOTPRequiresRegistrantForRegister(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.IssueOTP(context.Background(), "ned@example.com", PurposeRegister, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	_, err = env.engine.IssueOTP(context.Background(), "ned@example.com", Purpose("reset"), nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown purpose, got %v", err)
	}
}

func TestChallengeStoreOutageIsReported(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mr.SetError("ERR injected outage")

	_, err := env.engine.Register(context.Background(), testRegistration("oli@example.com"))
	if !errors.Is(err, ErrChallengeUnavailable) {
		t.Fatalf("expected ErrChallengeUnavailable, got %v", err)
	}
	if env.mailer.count() != 0 {
		t.Fatal("no mail may be sent when the challenge was not stored")
	}
}

func TestRegisterDuringConfirmationCannotSwapCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.nextCode("111111")
	if _, err := env.engine.Register(ctx, testRegistration("pat@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	sent := env.mailer.count()

	rival := make(chan error, 1)
	env.users.beforeCreate = func() {
		go func() {
			req := testRegistration("pat@example.com")
			req.Password = "someone-else"
			_, err := env.engine.Register(ctx, req)
			rival <- err
		}()
		select {
		case err := <-rival:
			t.Errorf("registration finished while the email was being promoted: %v", err)
			rival <- err
		case <-time.After(50 * time.Millisecond):
		}
	}

	res, err := env.engine.ConfirmRegistration(ctx, "pat@example.com", "111111")
	if err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}

	select {
	case err := <-rival:
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected the second registration to conflict, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second registration never finished")
	}

	user, err := env.users.FindByID(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	ok, err := env.engine.passwordHash.Verify("correct-horse", user.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("promoted user must keep the verified registrant's password: ok=%v err=%v", ok, err)
	}
	if _, err := env.engine.pending.Get(ctx, "pat@example.com"); !errors.Is(err, stores.ErrPendingNotFound) {
		t.Fatalf("expected no staged registrant after conflict, got %v", err)
	}
	if env.mailer.count() != sent {
		t.Fatal("conflicting registration must not send mail")
	}
}

func TestConcurrentRegisterAndConfirmKeepVerifiedPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		email := fmt.Sprintf("race%d@example.com", i)

		env.mu.Lock()
		env.codes = nil
		env.mu.Unlock()

		env.nextCode("111111")
		if _, err := env.engine.Register(ctx, testRegistration(email)); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		env.nextCode("222222")

		var (
			wg      sync.WaitGroup
			confirm *SessionResult
			err     error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			confirm, err = env.engine.ConfirmRegistration(ctx, email, "111111")
		}()
		go func() {
			defer wg.Done()
			req := testRegistration(email)
			req.Password = "someone-else"
			_, _ = env.engine.Register(ctx, req)
		}()
		wg.Wait()

		if err != nil {
			// The resubmission won the lock first and replaced the code.
			if !errors.Is(err, ErrInvalidOTP) {
				t.Fatalf("%s: unexpected confirm error: %v", email, err)
			}
			continue
		}
		user, findErr := env.users.FindByID(ctx, confirm.User.ID)
		if findErr != nil {
			t.Fatalf("%s: FindByID failed: %v", email, findErr)
		}
		if ok, _ := env.engine.passwordHash.Verify("correct-horse", user.PasswordHash); !ok {
			t.Fatalf("%s: promoted user carries an unverified password", email)
		}
	}
}

func TestRegisterResendAfterExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	now := time.Now()
	env.engine.now = func() time.Time { return now }

	env.nextCode("313131")
	if _, err := env.engine.Register(ctx, testRegistration("quinn@example.com")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	now = now.Add(6 * time.Minute)
	if _, err := env.engine.ConfirmRegistration(ctx, "quinn@example.com", "313131"); !errors.Is(err, ErrExpiredChallenge) {
		t.Fatalf("expected ErrExpiredChallenge, got %v", err)
	}

	env.nextCode("424200")
	if _, err := env.engine.ResendOTP(ctx, "quinn@example.com", PurposeRegister); err != nil {
		t.Fatalf("ResendOTP after expiry failed: %v", err)
	}
	if _, err := env.engine.ConfirmRegistration(ctx, "quinn@example.com", "424200"); err != nil {
		t.Fatalf("ConfirmRegistration with resent code failed: %v", err)
	}
}
