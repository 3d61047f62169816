package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/mealkart/authcore/fieldcrypt"
	internalaudit "github.com/mealkart/authcore/internal/audit"
	"github.com/mealkart/authcore/jwt"
	"github.com/mealkart/authcore/password"
	"github.com/mealkart/authcore/session"
)

// Engine is the central orchestrator of the authentication core. It owns the
// token manager, the session registry, the lockout and OTP flows, the field
// cipher, and the account operations, and delegates user persistence to the
// host through [UserProvider].
//
// Build one with [New] and the builder methods; a zero Engine is not usable.
// All exported methods are safe for concurrent use.
type Engine struct {
	config Config

	jwtManager   *jwt.Manager
	sessionStore *session.Store
	otpStore     *otpChallengeStore
	passwordHash *password.Hasher
	cipher       *fieldcrypt.Cipher

	userProvider UserProvider
	mailer       Mailer

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	janitor *janitor
}

// Close stops background workers and flushes the audit dispatcher.
//
// Close may return an error when input validation, dependency calls, or
// security checks fail.
func (e *Engine) Close() error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.janitor != nil {
		e.janitor.stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	return nil
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Validate authenticates a bearer token. All checks must pass: the JWT must
// verify (signature, expiry, issuer), the account it names must still exist,
// and the session it names must still be live in the registry. A valid
// signature over an ended or idle-expired session is rejected.
//
// The returned errors are distinguishable with errors.Is: [ErrNoToken],
// [ErrTokenExpired], [ErrTokenInvalid], [ErrUserNotFound],
// [ErrSessionExpired]. Validating also extends the session's sliding
// inactivity window. The identity's role comes from the live account record,
// not the token claim, so role changes apply on the next request.
//
// Validate may return an error when input validation, dependency calls, or
// security checks fail.
// Validate does not mutate shared global state and can be used concurrently
// when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, token string) (Identity, error) {
	if e == nil {
		return Identity{}, ErrEngineNotReady
	}
	if token == "" {
		return Identity{}, ErrNoToken
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		e.metrics.Inc(MetricValidateRejected)
		if errors.Is(err, jwt.ErrExpired) {
			e.emitAudit(ctx, auditEventTokenRejected, false, "", "", ErrTokenExpired, nil)
			return Identity{}, ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventTokenRejected, false, "", "", ErrTokenInvalid, nil)
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	user, err := e.loadUserByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricValidateRejected)
			e.emitAudit(ctx, auditEventTokenRejected, false, claims.UID, claims.SID, ErrUserNotFound, nil)
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, err
	}

	sess, err := e.sessionStore.Validate(ctx, claims.SID)
	if err != nil {
		return Identity{}, err
	}
	if sess == nil {
		e.metrics.Inc(MetricValidateRejected)
		e.metrics.Inc(MetricSessionExpired)
		e.emitAudit(ctx, auditEventTokenRejected, false, claims.UID, claims.SID, ErrSessionExpired, nil)
		return Identity{}, ErrSessionExpired
	}

	e.metrics.Inc(MetricValidateSuccess)
	return Identity{
		UserID:    user.UserID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: claims.SID,
	}, nil
}

// ValidateOptional is the forgiving variant of [Validate] for routes that
// serve both anonymous and authenticated callers. A missing, invalid, or
// expired token yields (nil, nil) instead of an error; backend failures are
// still reported.
func (e *Engine) ValidateOptional(ctx context.Context, token string) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, nil
	}

	identity, err := e.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNoToken) ||
			errors.Is(err, ErrTokenInvalid) ||
			errors.Is(err, ErrTokenExpired) ||
			errors.Is(err, ErrSessionExpired) ||
			errors.Is(err, ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

// Logout ends the session behind the token. Logging out an already-ended or
// expired session succeeds quietly; the operation is idempotent.
//
// Logout may return an error when input validation, dependency calls, or
// security checks fail.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrNoToken
	}

	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		// An expired token still names the session to end.
		if !errors.Is(err, jwt.ErrExpired) {
			return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	if claims == nil || claims.SID == "" {
		return ErrTokenInvalid
	}

	if err := e.sessionStore.End(ctx, claims.SID, session.EndReasonLogout); err != nil {
		return err
	}
	e.metrics.Inc(MetricSessionEnded)
	e.emitAudit(ctx, auditEventLogout, true, claims.UID, claims.SID, nil, nil)
	return nil
}

// ListSessions returns the caller's live sessions across devices. Ordering
// is not guaranteed; callers sort as needed.
func (e *Engine) ListSessions(ctx context.Context, identity Identity) ([]*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return e.sessionStore.ListActive(ctx, identity.UserID)
}

// EndAllOtherSessions force-ends every live session of the calling user
// except the current one, returning how many were ended. The canonical
// "log out my other devices" operation.
//
// EndAllOtherSessions may return an error when input validation, dependency
// calls, or security checks fail.
func (e *Engine) EndAllOtherSessions(ctx context.Context, identity Identity) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	ended, err := e.sessionStore.EndAllExcept(ctx, identity.UserID, identity.SessionID)
	if err != nil {
		return 0, err
	}
	for i := 0; i < ended; i++ {
		e.metrics.Inc(MetricSessionEnded)
	}
	e.emitAudit(ctx, auditEventSessionForced, true, identity.UserID, identity.SessionID,
		nil, func() map[string]string {
			return map[string]string{"ended": fmt.Sprintf("%d", ended)}
		})
	return ended, nil
}

// ForceEndSession ends an arbitrary session by id. Admin-only: the acting
// identity must hold [RoleAdmin] unless the session belongs to the actor.
//
// ForceEndSession may return an error when input validation, dependency
// calls, or security checks fail.
func (e *Engine) ForceEndSession(ctx context.Context, actor Identity, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if actor.Role != RoleAdmin {
		target, err := e.sessionStore.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if target == nil || target.UserID != actor.UserID {
			return ErrPermissionDenied
		}
	}

	if err := e.sessionStore.End(ctx, sessionID, session.EndReasonForced); err != nil {
		return err
	}
	e.metrics.Inc(MetricSessionEnded)
	e.emitAudit(ctx, auditEventSessionForced, true, actor.UserID, sessionID, nil, nil)
	return nil
}

// GetProfile returns the caller's own account record with PII opened and the
// password hash blanked. IDOR-safe by construction: the record fetched is the
// one named by the authenticated identity, never by a client-supplied id.
func (e *Engine) GetProfile(ctx context.Context, identity Identity) (UserRecord, error) {
	if e == nil {
		return UserRecord{}, ErrEngineNotReady
	}
	record, err := e.loadUserByID(ctx, identity.UserID)
	if err != nil {
		return UserRecord{}, err
	}
	record.PasswordHash = ""
	return record, nil
}

func (e *Engine) loadUserByID(ctx context.Context, userID string) (UserRecord, error) {
	record, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return UserRecord{}, err
	}
	return e.openPII(record), nil
}

func (e *Engine) loadUserByUsername(ctx context.Context, username string) (UserRecord, error) {
	record, err := e.userProvider.GetUserByUsername(ctx, username)
	if err != nil {
		return UserRecord{}, err
	}
	return e.openPII(record), nil
}

func (e *Engine) saveUser(ctx context.Context, record UserRecord) error {
	sealed, err := e.sealPII(record)
	if err != nil {
		return err
	}
	return e.userProvider.UpdateUser(ctx, sealed)
}
