// Package authcore provides the authentication and encrypted-PII core for a
// food-ordering backend: JWT access tokens double-checked against a
// Redis-backed session registry with a sliding 15-minute inactivity window,
// a login-attempt/lockout state machine, an email one-time-code second
// factor, and transparent AES-256-GCM encryption of PII fields at the
// persistence boundary.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Dual source of truth
//
// A request is authenticated only when its JWT verifies AND its server-side
// session is still live. The token's embedded expiry may be long; the
// session registry is the real timeout authority, which keeps stateless-
// looking tokens revocable. The two checks are deliberately composed, never
// collapsed.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors, and value types. The host application supplies the user
// database behind [UserProvider] and outbound delivery behind [Mailer];
// Redis holds sessions and login challenges. HTTP routing, file storage,
// email templating, and payments live outside this module.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Trust client-supplied identifiers for ownership decisions; the acting
//     user id always comes from the authenticated identity.
//   - Let a PII decryption failure fail a record read (see fieldcrypt).
package authcore
