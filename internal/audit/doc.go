// Package audit implements the structured audit event model and the
// asynchronous dispatcher the engine emits authentication decisions through.
// The root package re-exports the public pieces (Event, Sink, the built-in
// sinks) so hosts never import this package directly.
package audit
