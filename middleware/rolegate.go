package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/mealkart/authcore"
)

// RequireRole admits only identities holding one of the allowed roles.
// Requests without an identity get 401; authenticated requests with the
// wrong role get 403, with the allowed set and the caller's actual role in
// the body. Must run after [Guard].
func RequireRole(allowed ...authcore.Role) func(http.Handler) http.Handler {
	allowedSet := make(map[authcore.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "no token")
				return
			}
			if _, admitted := allowedSet[identity.Role]; !admitted {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":   "insufficient role",
					"allowed": allowed,
					"role":    identity.Role,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnerOrAdmin admits the request when the authenticated identity
// either owns the targeted resource or holds the admin role. ownerID
// extracts the resource owner's user id from the request (typically a path
// parameter); the comparison is always against the verified identity, never
// against anything the client claims about itself.
func RequireOwnerOrAdmin(ownerID func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "no token")
				return
			}
			if identity.Role != authcore.RoleAdmin && identity.UserID != ownerID(r) {
				writeError(w, http.StatusForbidden, "not resource owner")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
