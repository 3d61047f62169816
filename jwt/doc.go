// Package jwt wraps github.com/golang-jwt/jwt/v5 with the claim shape and
// verification rules used by the authcore engine.
//
// Tokens are HMAC-SHA256 signed with a server-held secret. The payload
// carries the user id, username, role, and the server-side session id. The
// embedded expiry is deliberately long: the real timeout authority is the
// session registry, which tracks a sliding inactivity window per session.
//
// # Architecture boundaries
//
// This package mints and verifies tokens only. It does NOT consult the
// session store, load users, or make authorization decisions; those
// responsibilities belong to the Engine.
package jwt
