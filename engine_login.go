package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mealkart/authcore/internal"
	"github.com/mealkart/authcore/session"
)

// Login authenticates a username/password pair.
//
// The flow is ordered deliberately:
//
//  1. Load the account; unknown usernames map to [ErrInvalidCredentials].
//  2. Check the lockout window BEFORE the password. A locked account refuses
//     even the correct password, so the lock cannot be probed away.
//  3. Verify the password. Failure increments the attempt counter and, at the
//     threshold, opens the lockout window.
//  4. Success resets the counter, clears any stale lock, and either issues a
//     token directly (OTP-skipped roles) or opens an OTP challenge.
//
// Login may return an error when input validation, dependency calls, or
// security checks fail. Sentinels: [ErrInvalidCredentials] (as
// [CredentialsError] with remaining attempts), [ErrAccountLocked] (as
// [LockoutError]), [ErrPasswordExpired].
func (e *Engine) Login(ctx context.Context, username, plainPassword string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	user, err := e.loadUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials,
				func() map[string]string { return map[string]string{"username": username} })
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	now := time.Now()

	if user.LockedUntil != nil {
		if now.Before(*user.LockedUntil) {
			e.metrics.Inc(MetricLoginLocked)
			lockErr := &LockoutError{Until: *user.LockedUntil}
			e.emitAudit(ctx, auditEventLoginLocked, false, user.UserID, "", lockErr, nil)
			return LoginResult{}, lockErr
		}
		// Stale lock: the window elapsed, heal the record before judging
		// the password so the counter restarts from zero.
		user.LockedUntil = nil
		user.LoginAttempts = 0
	}

	ok, err := e.passwordHash.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		user.LoginAttempts++
		threshold := e.config.Lockout.Threshold

		if user.LoginAttempts >= threshold {
			lockedUntil := now.Add(e.config.Lockout.Duration)
			user.LockedUntil = &lockedUntil
			if err := e.saveUser(ctx, user); err != nil {
				return LoginResult{}, err
			}
			e.metrics.Inc(MetricLoginLocked)
			lockErr := &LockoutError{Until: lockedUntil}
			e.emitAudit(ctx, auditEventLoginLocked, false, user.UserID, "", lockErr, nil)
			return LoginResult{}, lockErr
		}

		if err := e.saveUser(ctx, user); err != nil {
			return LoginResult{}, err
		}
		e.metrics.Inc(MetricLoginFailure)
		credErr := &CredentialsError{RemainingAttempts: threshold - user.LoginAttempts}
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", credErr, nil)
		return LoginResult{}, credErr
	}

	// Correct password from here on.
	dirty := user.LoginAttempts != 0 || user.LockedUntil != nil
	user.LoginAttempts = 0
	user.LockedUntil = nil

	if !user.PasswordExpiresAt.IsZero() && now.After(user.PasswordExpiresAt) {
		if dirty {
			if err := e.saveUser(ctx, user); err != nil {
				return LoginResult{}, err
			}
		}
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrPasswordExpired, nil)
		return LoginResult{}, ErrPasswordExpired
	}

	if upgrade, _ := e.passwordHash.NeedsRehash(user.PasswordHash); upgrade {
		if rehashed, rehashErr := e.passwordHash.Hash(plainPassword); rehashErr == nil {
			user.PasswordHash = rehashed
			dirty = true
		}
	}

	if dirty {
		if err := e.saveUser(ctx, user); err != nil {
			return LoginResult{}, err
		}
	}

	if e.otpRequired(user.Role) {
		return e.beginOTPChallenge(ctx, user)
	}

	return e.issueSession(ctx, user)
}

// ConfirmOTP completes a two-step login. The challenge is single-use: a
// correct code consumes it, and a second confirmation with the same id fails
// with [ErrOTPInvalid]. Expired challenges yield [ErrOTPExpired].
//
// ConfirmOTP may return an error when input validation, dependency calls, or
// security checks fail.
func (e *Engine) ConfirmOTP(ctx context.Context, challengeID, code string) (LoginResult, error) {
	if e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	if challengeID == "" || code == "" {
		return LoginResult{}, ErrOTPInvalid
	}

	challenge, err := e.otpStore.Get(ctx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, errOTPChallengeNotFound):
			e.metrics.Inc(MetricOTPFailure)
			e.emitAudit(ctx, auditEventOTPFailure, false, "", "", ErrOTPInvalid, nil)
			return LoginResult{}, ErrOTPInvalid
		case errors.Is(err, errOTPChallengeExpired):
			e.metrics.Inc(MetricOTPFailure)
			e.emitAudit(ctx, auditEventOTPFailure, false, "", "", ErrOTPExpired, nil)
			return LoginResult{}, ErrOTPExpired
		default:
			return LoginResult{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
		}
	}

	if !internal.OTPEqual(code, challenge.CodeHash) {
		e.metrics.Inc(MetricOTPFailure)
		e.emitAudit(ctx, auditEventOTPFailure, false, challenge.UserID, "", ErrOTPInvalid, nil)
		return LoginResult{}, ErrOTPInvalid
	}

	// Consume before issuing. If the delete races a concurrent confirm, only
	// the one that actually removed the key proceeds.
	deleted, err := e.otpStore.Delete(ctx, challengeID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	if !deleted {
		e.metrics.Inc(MetricOTPFailure)
		return LoginResult{}, ErrOTPInvalid
	}

	user, err := e.loadUserByID(ctx, challenge.UserID)
	if err != nil {
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricOTPSuccess)
	e.emitAudit(ctx, auditEventOTPSuccess, true, user.UserID, "", nil, nil)
	return e.issueSession(ctx, user)
}

func (e *Engine) otpRequired(role Role) bool {
	for _, skip := range e.config.OTP.SkipRoles {
		if role == skip {
			return false
		}
	}
	return true
}

func (e *Engine) beginOTPChallenge(ctx context.Context, user UserRecord) (LoginResult, error) {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	challengeID := uuid.NewString()
	expiresAt := time.Now().Add(e.config.OTP.TTL)

	record := &otpChallenge{
		UserID:    user.UserID,
		CodeHash:  internal.HashOTP(code),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.otpStore.Save(ctx, challengeID, record, e.config.OTP.TTL); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	// Mail failure must not strand the login: the challenge exists, and in
	// dev mode the code is still reachable through the echo.
	if err := e.mailer.SendOTP(ctx, user.Email, code, expiresAt); err != nil {
		log.Printf("authcore: otp mail delivery failed for user %s: %v", user.UserID, err)
	}

	e.metrics.Inc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, true, user.UserID, "", nil, nil)

	result := LoginResult{
		RequireOTP:   true,
		ChallengeID:  challengeID,
		OTPExpiresAt: expiresAt,
	}
	if e.config.OTP.DevExposeCode && !e.config.ProductionMode {
		result.OTPCode = code
	}
	return result, nil
}

func (e *Engine) issueSession(ctx context.Context, user UserRecord) (LoginResult, error) {
	sessionID := uuid.NewString()

	sess := &session.Session{
		SessionID: sessionID,
		UserID:    user.UserID,
		Role:      string(user.Role),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if err := e.sessionStore.Create(ctx, sess); err != nil {
		return LoginResult{}, err
	}

	token, err := e.jwtManager.CreateAccess(user.UserID, user.Username, sessionID, string(user.Role))
	if err != nil {
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, sessionID, nil, nil)

	return LoginResult{Token: token}, nil
}
