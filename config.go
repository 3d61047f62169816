package authcore

import (
	"errors"
	"time"

	"github.com/mealkart/authcore/fieldcrypt"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	Lockout        LockoutConfig
	OTP            OTPConfig
	Password       PasswordConfig
	FieldCrypto    fieldcrypt.Config
	Account        AccountConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ProductionMode bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authcore APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	// Secret signs and verifies tokens (HS256). Minimum 32 bytes.
	Secret []byte
	// TokenTTL is the nominal embedded expiry; the session registry
	// enforces the effective 15-minute sliding timeout independently.
	TokenTTL time.Duration
	Issuer   string
	Leeway   time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authcore APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
	// IdleWindow is the sliding inactivity window. Every authenticated
	// request pushes expiry forward by this much.
	IdleWindow time.Duration
	// EndedRetention controls how long ended session records stay readable
	// for device lists and audit.
	EndedRetention time.Duration
	// CleanupInterval runs the index janitor. Zero disables it; correctness
	// never depends on it.
	CleanupInterval time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by authcore APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	// Threshold is the number of consecutive failed password checks that
	// locks the account.
	Threshold int
	// Duration is the lockout window. Stale lockouts self-heal on the next
	// attempt after it elapses.
	Duration time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig defines a public type used by authcore APIs.
//
// OTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
	// SkipRoles complete login without the second factor (admin by default).
	SkipRoles []Role
	// DevExposeCode echoes generated codes in login responses. Ignored in
	// production mode. Insecure; development only.
	DevExposeCode bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authcore APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	// Cost is the bcrypt cost factor (minimum 10, default 12).
	Cost int
	// MaxAge bounds password validity. Zero means passwords never expire.
	MaxAge time.Duration
}

// AccountConfig defines a public type used by authcore APIs.
//
// AccountConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountConfig struct {
	// DefaultRole is assigned to every account created through
	// [Engine.CreateAccount], regardless of caller input.
	DefaultRole Role
}

// AuditConfig defines a public type used by authcore APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig defines a public type used by authcore APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "authcore",
		},
		Session: SessionConfig{
			RedisPrefix:     "ac",
			IdleWindow:      15 * time.Minute,
			EndedRetention:  24 * time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 10,
			Duration:  10 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:    6,
			TTL:       10 * time.Minute,
			SkipRoles: []Role{RoleAdmin},
		},
		Password: PasswordConfig{
			Cost: 12,
		},
		Account: AccountConfig{
			DefaultRole: RoleUser,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field consistency. Component constructors perform
// their own deeper validation during [Builder.Build].
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT.Secret must be at least 32 bytes")
	}
	if c.Session.IdleWindow <= 0 {
		return errors.New("Session.IdleWindow must be positive")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout.Threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout.Duration must be positive")
	}
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP.Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP.TTL must be positive")
	}
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account.DefaultRole is not a known role")
	}
	if c.Account.DefaultRole == RoleAdmin {
		return errors.New("Account.DefaultRole must not be admin")
	}
	if c.ProductionMode && c.OTP.DevExposeCode {
		return errors.New("OTP.DevExposeCode is not allowed in production mode")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.OTP.SkipRoles != nil {
		out.OTP.SkipRoles = append([]Role(nil), cfg.OTP.SkipRoles...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
