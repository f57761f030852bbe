package otpgate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MrEthical07/otpgate/internal"
	"github.com/MrEthical07/otpgate/internal/keylock"
	"github.com/MrEthical07/otpgate/internal/stores"
	"github.com/MrEthical07/otpgate/jwt"
	"github.com/MrEthical07/otpgate/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users   UserDirectory
	mailer  MailSender
	compose ComposeFunc

	auditSink AuditSink
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the challenge and staging stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithMailSender(sender MailSender) *Builder {
	b.mailer = sender
	return b
}

// WithComposer replaces the plain-text OTP message renderer.
func (b *Builder) WithComposer(compose ComposeFunc) *Builder {
	b.compose = compose
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for OTP expiry and session issuance.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user directory required")
	}
	if b.mailer == nil {
		return nil, errors.New("mail sender required")
	}

	if len(cfg.OTP.Pepper) == 0 {
		cfg.OTP.Pepper = derivePepper(cfg.Session.PrivateKey)
	}

	engine := &Engine{
		config:     cfg,
		challenges: stores.NewChallengeStore(b.redis, cfg.Store.ChallengePrefix),
		pending:    stores.NewPendingStore(b.redis, cfg.Store.PendingPrefix),
		locks:      keylock.New(),
		users:      b.users,
		mailer:     b.mailer,
		compose:    b.compose,
		newCode:    internal.NewOTP,
		now:        b.now,
	}
	if engine.compose == nil {
		engine.compose = PlainTextComposer
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	engine.dummyHash, err = comparisonHash(ph)
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		Leeway:        cfg.Session.Leeway,
		KeyID:         cfg.Session.KeyID,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.clock)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

// derivePepper keeps the OTP hash key separate from the signing key while
// staying stable across instances that share the signing key.
func derivePepper(signingKey []byte) []byte {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte("otpgate/otp-pepper/v1"))
	return mac.Sum(nil)
}

// comparisonHash hashes a random secret so unknown-email logins still pay for
// one argon2 verification.
func comparisonHash(ph *password.Argon2) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return ph.Hash(hex.EncodeToString(raw[:]))
}
