// Package internal holds shared helpers (random identifiers, one-time codes)
// that are implementation details of the authcore engine and must not leak
// into the public API.
package internal
