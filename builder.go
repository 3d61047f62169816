package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/mealkart/authcore/fieldcrypt"
	internalaudit "github.com/mealkart/authcore/internal/audit"
	"github.com/mealkart/authcore/jwt"
	"github.com/mealkart/authcore/password"
	"github.com/mealkart/authcore/session"
)

// Builder assembles an [Engine] from configuration and host-provided
// dependencies. Obtain one with [New], chain the With methods, then call
// [Builder.Build].
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	mailer       Mailer
	auditSink    AuditSink
}

// New returns a Builder preloaded with production defaults: 15-minute
// sliding sessions, lockout after 10 failures for 10 minutes, 6-digit
// 10-minute OTP codes skipped for admins.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig overlays cfg on the defaults. Zero values inside cfg fall back
// to the corresponding default, so callers only set what they change.
func (b *Builder) WithConfig(cfg Config) *Builder {
	defaults := defaultConfig()

	if cfg.JWT.TokenTTL == 0 {
		cfg.JWT.TokenTTL = defaults.JWT.TokenTTL
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = defaults.JWT.Issuer
	}
	if cfg.Session.RedisPrefix == "" {
		cfg.Session.RedisPrefix = defaults.Session.RedisPrefix
	}
	if cfg.Session.IdleWindow == 0 {
		cfg.Session.IdleWindow = defaults.Session.IdleWindow
	}
	if cfg.Session.EndedRetention == 0 {
		cfg.Session.EndedRetention = defaults.Session.EndedRetention
	}
	if cfg.Lockout.Threshold == 0 {
		cfg.Lockout.Threshold = defaults.Lockout.Threshold
	}
	if cfg.Lockout.Duration == 0 {
		cfg.Lockout.Duration = defaults.Lockout.Duration
	}
	if cfg.OTP.Digits == 0 {
		cfg.OTP.Digits = defaults.OTP.Digits
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = defaults.OTP.TTL
	}
	if cfg.OTP.SkipRoles == nil {
		cfg.OTP.SkipRoles = defaults.OTP.SkipRoles
	}
	if cfg.Password.Cost == 0 {
		cfg.Password.Cost = defaults.Password.Cost
	}
	if cfg.Account.DefaultRole == "" {
		cfg.Account.DefaultRole = defaults.Account.DefaultRole
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = defaults.Audit.BufferSize
	}

	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions and OTP challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the host's user persistence adapter. Required.
func (b *Builder) WithUserProvider(provider UserProvider) *Builder {
	b.userProvider = provider
	return b
}

// WithMailer sets the OTP delivery channel. Defaults to [NoOpMailer].
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets where audit events go. Defaults to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, constructs every component, and returns
// a ready [Engine].
//
// Build may return an error when input validation, dependency calls, or
// security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		Secret:   b.config.JWT.Secret,
		TokenTTL: b.config.JWT.TokenTTL,
		Issuer:   b.config.JWT.Issuer,
		Leeway:   b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{Cost: b.config.Password.Cost})
	if err != nil {
		return nil, err
	}

	cipher, err := fieldcrypt.NewCipher(b.config.FieldCrypto)
	if err != nil {
		return nil, err
	}

	mailer := b.mailer
	if mailer == nil {
		mailer = NoOpMailer{}
	}

	engine := &Engine{
		config: b.config,
		jwtManager: jwtManager,
		sessionStore: session.NewStore(
			b.redis,
			b.config.Session.RedisPrefix,
			b.config.Session.IdleWindow,
			b.config.Session.EndedRetention,
		),
		otpStore:     newOTPChallengeStore(b.redis),
		passwordHash: hasher,
		cipher:       cipher,
		userProvider: b.userProvider,
		mailer:       mailer,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
		}, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
	}

	if b.config.Session.CleanupInterval > 0 {
		engine.janitor = startJanitor(engine.sessionStore, b.config.Session.CleanupInterval)
	}

	return engine, nil
}
