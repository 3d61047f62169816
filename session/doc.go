// Package session provides the Redis-backed session registry and compact
// binary session encoding for authentication hot paths.
//
// # Sliding expiry
//
// Every successful [Store.Validate] pushes the session's expiry forward by
// the configured idle window and stamps lastActivity. A session that keeps
// receiving traffic never expires; one idle past the window is marked ended
// with reason timeout on the next lookup (lazy expiry, no background sweep
// is required for correctness). Validate-and-extend is a read-then-write
// sequence with last-writer-wins semantics: a lost update can under-extend a
// session, never grant access a fresh validate would refuse.
//
// # Ended sessions
//
// Ended sessions (logout, timeout, forced) are retained briefly under a
// Redis TTL so device lists and audit trails can show how a session ended.
// Redis TTLs are storage hygiene only; the ExpiresAt and LastActivity fields
// are authoritative.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT interpret JWT tokens, load users, or enforce authorization;
// those responsibilities belong to the Engine.
package session
