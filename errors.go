package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNoToken is an exported constant or variable used by the authentication engine.
	ErrNoToken = errors.New("no token")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionExpired is an exported constant or variable used by the authentication engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrPasswordExpired is an exported constant or variable used by the authentication engine.
	ErrPasswordExpired = errors.New("password expired")
	// ErrOTPInvalid is an exported constant or variable used by the authentication engine.
	ErrOTPInvalid = errors.New("invalid otp code")
	// ErrOTPExpired is an exported constant or variable used by the authentication engine.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPUnavailable is an exported constant or variable used by the authentication engine.
	ErrOTPUnavailable = errors.New("otp backend unavailable")
	// ErrPermissionDenied is an exported constant or variable used by the authentication engine.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDuplicateUser is an exported constant or variable used by the authentication engine.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrInvalidRole is an exported constant or variable used by the authentication engine.
	ErrInvalidRole = errors.New("invalid role")
)

// LockoutError reports a refused login attempt while the account lockout
// window is open. It unwraps to [ErrAccountLocked] so callers can match with
// errors.Is while still reading the remaining time for countdown UIs.
type LockoutError struct {
	Until time.Time
}

// Error implements error.
func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minute(s)", e.RemainingMinutes())
}

// Unwrap makes errors.Is(err, ErrAccountLocked) hold.
func (e *LockoutError) Unwrap() error {
	return ErrAccountLocked
}

// RemainingMinutes returns the whole minutes left in the lockout window,
// rounded up, never below 1 while the lock is active.
func (e *LockoutError) RemainingMinutes() int {
	remaining := time.Until(e.Until)
	if remaining <= 0 {
		return 0
	}
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// CredentialsError reports a failed password check together with how many
// attempts remain before lockout. It unwraps to [ErrInvalidCredentials].
type CredentialsError struct {
	RemainingAttempts int
}

// Error implements error.
func (e *CredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempt(s) remaining", e.RemainingAttempts)
}

// Unwrap makes errors.Is(err, ErrInvalidCredentials) hold.
func (e *CredentialsError) Unwrap() error {
	return ErrInvalidCredentials
}
