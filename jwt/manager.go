package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrExpired is returned by ParseAccess for structurally valid tokens whose
// exp claim has passed. Callers distinguish it from other parse failures so
// clients can tell "log in again" from "token malformed".
var ErrExpired = errors.New("token expired")

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// Secret signs and verifies tokens (HS256).
	Secret []byte
	// TokenTTL is the nominal embedded expiry. It may be long; the session
	// registry enforces the effective timeout independently.
	TokenTTL time.Duration
	Issuer   string
	Leeway   time.Duration
}

// Manager defines a public type used by authcore APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// AccessClaims is the signed token payload.
type AccessClaims struct {
	UID      string `json:"uid"`
	Username string `json:"uname"`
	SID      string `json:"sid"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready Manager.
//
// NewManager may return an error when input validation fails.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess mints a signed token for the given identity and session.
//
// CreateAccess may return an error when signing fails.
// CreateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) CreateAccess(uid, username, sid, role string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UID:      uid,
		Username: username,
		SID:      sid,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

// ParseAccess verifies the signature and registered claims of tokenStr and
// returns the decoded claims. Expired tokens yield [ErrExpired] together with
// the decoded claims, so callers that only need the token's identifiers
// (such as logout) can still read them; every other failure yields the
// underlying parse error and nil claims.
//
// ParseAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// The signature already verified; only the exp claim failed. The
			// decoded claims still identify the session.
			if token != nil {
				if claims, ok := token.Claims.(*AccessClaims); ok && claims.SID != "" {
					return claims, ErrExpired
				}
			}
			return nil, ErrExpired
		}
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
