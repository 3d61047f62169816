package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
)

// NewOTP returns a random numeric one-time code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashOTP returns the SHA-256 digest of a one-time code. Only the digest is
// persisted; the plaintext code goes out-of-band to the user.
func HashOTP(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// OTPEqual compares a supplied code against a stored digest in constant time.
func OTPEqual(code string, digest [32]byte) bool {
	supplied := HashOTP(code)
	return subtle.ConstantTimeCompare(supplied[:], digest[:]) == 1
}
