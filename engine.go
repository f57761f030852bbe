package otpgate

import (
	"time"

	internalaudit "github.com/MrEthical07/otpgate/internal/audit"
	"github.com/MrEthical07/otpgate/internal/keylock"
	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/password"
)

// Engine runs the OTP-gated registration and login handshake and issues
// session tokens. It is safe for concurrent use. Build one with New().Build().
type Engine struct {
	config       Config
	challenges   *stores.ChallengeStore
	pending      *stores.PendingStore
	locks        *keylock.Locker
	users        UserDirectory
	mailer       MailSender
	compose      ComposeFunc
	newCode      func(digits int) (string, error)
	passwordHash *password.Argon2
	dummyHash    string
	jwtManager   *jwt.Manager
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	now          func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events lost because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CookieConfig returns the session cookie settings for HTTP adapters.
func (e *Engine) CookieConfig() CookieConfig {
	return e.config.Cookie
}

// SessionTTL is the lifetime of issued session tokens.
func (e *Engine) SessionTTL() time.Duration {
	if e.jwtManager != nil {
		return e.jwtManager.TTL()
	}
	return e.config.Session.TTL
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, since time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(since))
}

func (e *Engine) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

// otpLifetime is how long challenge and staging keys live in Redis.
func (e *Engine) otpLifetime() time.Duration {
	return e.config.OTP.TTL + e.config.OTP.ExpiredGrace
}
