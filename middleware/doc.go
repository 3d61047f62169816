// Package middleware provides net/http middleware over the authcore engine:
// bearer-token authentication guards and role-based route gates.
//
// # Architecture boundaries
//
//   - Guards call [authcore.Engine.Validate] and translate its sentinel
//     errors into distinguishable 401 responses.
//   - Role gates read the authenticated identity from the request context;
//     they never parse tokens themselves.
//   - Ownership checks derive the acting user id from the verified identity,
//     never from client-supplied path or body values.
//
// # What this package must NOT do
//
//   - Must not implement token parsing or session logic; that lives in the
//     engine.
//   - Must not leak which of signature, expiry, or session state failed
//     beyond the coarse cause string in the 401 body.
//   - Must not depend on any HTTP framework; plain net/http only.
package middleware
