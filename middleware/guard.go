package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mealkart/authcore"
)

type contextKey int

const identityKey contextKey = iota

// IdentityFromContext returns the authenticated identity attached by [Guard]
// or [Optional]. The second return is false on unauthenticated requests.
func IdentityFromContext(ctx context.Context) (authcore.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(authcore.Identity)
	return identity, ok
}

func withIdentity(ctx context.Context, identity authcore.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Guard authenticates every request with the engine's dual token-and-session
// check and rejects failures with 401. The response body carries a coarse
// cause so clients can tell "log in again" from "token malformed":
//
//	{"error": "no token" | "token expired" | "session expired" | "invalid token"}
//
// On success the identity is attached to the request context for
// [IdentityFromContext] and the role gates.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := engine.Validate(requestContext(r), bearerToken(r))
			if err != nil {
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// Optional attaches an identity when a valid token is present and lets the
// request through anonymously otherwise. Only backend failures produce an
// error response.
func Optional(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := engine.ValidateOptional(requestContext(r), bearerToken(r))
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "authentication backend unavailable")
				return
			}
			if identity != nil {
				r = r.WithContext(withIdentity(r.Context(), *identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header. Returns ""
// when the header is missing or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func requestContext(r *http.Request) context.Context {
	ctx := authcore.WithClientIP(r.Context(), clientIP(r))
	return authcore.WithUserAgent(ctx, r.UserAgent())
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrNoToken):
		writeError(w, http.StatusUnauthorized, "no token")
	case errors.Is(err, authcore.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, authcore.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, authcore.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "user not found")
	default:
		writeError(w, http.StatusUnauthorized, "invalid token")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
