package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	ivSize  = 16
	tagSize = 16
	keySize = 32

	// Fixed KDF salt: the configured secret is the entropy source, and the
	// derived key must be stable across processes so existing ciphertext
	// stays readable.
	kdfSalt = "authcore-field-salt"

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrSecretRequired is returned by NewCipher when encryption is enabled
// without a secret.
var ErrSecretRequired = errors.New("fieldcrypt: secret required when encryption is enabled")

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// Secret is the key material the 32-byte AES key is derived from.
	Secret string
	// Enabled gates encryption globally. When false, Encrypt and Decrypt
	// pass values through unmodified in both directions.
	Enabled bool
	// Strict switches Decrypt from fail-open (return ciphertext unchanged)
	// to blanking envelope-shaped values that fail the authenticated open.
	// Legacy plaintext still passes through untouched.
	Strict bool
}

// Cipher encrypts and decrypts scalar string fields. The derived key is held
// as a field and computed once in [NewCipher]; instances are safe for
// concurrent use.
type Cipher struct {
	key     []byte
	enabled bool
	strict  bool
}

type envelope struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
}

// NewCipher derives the AES-256 key from cfg.Secret via scrypt and returns a
// ready Cipher. Derivation happens exactly once, at construction.
func NewCipher(cfg Config) (*Cipher, error) {
	if !cfg.Enabled {
		return &Cipher{enabled: false}, nil
	}
	if cfg.Secret == "" {
		return nil, ErrSecretRequired
	}

	key, err := scrypt.Key([]byte(cfg.Secret), []byte(kdfSalt), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, err
	}

	return &Cipher{key: key, enabled: true, strict: cfg.Strict}, nil
}

// Enabled reports whether field encryption is active.
func (c *Cipher) Enabled() bool {
	return c != nil && c.enabled
}

// Encrypt seals plaintext into the persisted envelope string. Empty input is
// passed through so absent values stay absent. When the cipher is disabled,
// the input is returned unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out, err := json.Marshal(envelope{
		Encrypted: hex.EncodeToString(ct),
		IV:        hex.EncodeToString(iv),
		AuthTag:   hex.EncodeToString(tag),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decrypt reverses Encrypt. It never returns an error: values that are not
// envelope-shaped (legacy plaintext, arbitrary strings) come back unchanged,
// and envelope-shaped values that fail the authenticated open come back
// unchanged as well (or blanked, in strict mode). A read can therefore never
// fail on a malformed or pre-encryption row.
func (c *Cipher) Decrypt(value string) string {
	if !c.Enabled() || value == "" {
		return value
	}

	env, ok := parseEnvelope(value)
	if !ok {
		return value
	}

	plaintext, err := c.open(env)
	if err != nil {
		if c.strict {
			return ""
		}
		return value
	}
	return plaintext
}

// IsEnvelope reports whether value parses as the persisted envelope shape.
func IsEnvelope(value string) bool {
	_, ok := parseEnvelope(value)
	return ok
}

func parseEnvelope(value string) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(value), &env); err != nil {
		return envelope{}, false
	}
	if env.Encrypted == "" || env.IV == "" || env.AuthTag == "" {
		return envelope{}, false
	}
	return env, true
}

func (c *Cipher) open(env envelope) (string, error) {
	ct, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", err
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return "", err
	}
	if len(iv) != ivSize || len(tag) != tagSize {
		return "", errors.New("invalid envelope sizes")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
