// Package fieldcrypt provides reversible AES-256-GCM encryption for scalar
// string fields (PII such as email, phone, address) stored in the user
// database.
//
// # Envelope format
//
// Encrypted values are persisted as a JSON envelope string:
//
//	{"encrypted":"<hex>","iv":"<hex 16 bytes>","authTag":"<hex 16 bytes>"}
//
// Any stored value that does not match this shape is treated as legacy
// plaintext and passed through unchanged.
//
// # Fail-open decryption
//
// Decrypt never returns an error. A value that cannot be parsed as an
// envelope, or whose authenticated open fails (tampered ciphertext, wrong
// key), is returned as-is so a single corrupt field can never fail the read
// of a whole record. Strict mode (see [Config.Strict]) blanks undecryptable
// envelope-shaped values instead of echoing ciphertext.
//
// # Architecture boundaries
//
// This package owns key derivation and the envelope codec only. It does NOT
// decide which fields are encrypted; that mapping belongs to the engine's
// persistence boundary.
package fieldcrypt
