package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateAccount registers a new account. The role is always
// [AccountConfig.DefaultRole]; there is no request field that could override
// it. Password policy and username uniqueness are enforced here, PII is
// sealed before the record reaches the provider.
//
// CreateAccount may return an error when input validation, dependency calls,
// or security checks fail. Sentinels: [ErrDuplicateUser],
// [password.ErrPasswordTooShort] via the hasher.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (CreateAccountResult, error) {
	if e == nil {
		return CreateAccountResult{}, ErrEngineNotReady
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return CreateAccountResult{}, errors.New("username required")
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return CreateAccountResult{}, err
	}

	now := time.Now()
	record := UserRecord{
		UserID:            uuid.NewString(),
		Username:          username,
		Email:             req.Email,
		Phone:             req.Phone,
		Address:           req.Address,
		PasswordHash:      hash,
		Role:              e.config.Account.DefaultRole,
		PasswordChangedAt: now,
		CreatedAt:         now,
	}
	if e.config.Password.MaxAge > 0 {
		record.PasswordExpiresAt = now.Add(e.config.Password.MaxAge)
	}

	sealed, err := e.sealPII(record)
	if err != nil {
		return CreateAccountResult{}, err
	}
	created, err := e.userProvider.CreateUser(ctx, sealed)
	if err != nil {
		return CreateAccountResult{}, err
	}

	e.metrics.Inc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, created.UserID, "", nil,
		func() map[string]string {
			return map[string]string{"role": string(created.Role)}
		})

	return CreateAccountResult{UserID: created.UserID, Role: created.Role}, nil
}

// UpdateProfile applies a partial update to the calling user's own record.
// The record mutated is the one named by the authenticated identity; there is
// no target-user parameter, so one principal cannot reach another's profile.
// Role and username are not part of [ProfileUpdate] and survive any payload.
//
// UpdateProfile may return an error when input validation, dependency calls,
// or security checks fail.
func (e *Engine) UpdateProfile(ctx context.Context, identity Identity, update ProfileUpdate) error {
	if e == nil {
		return ErrEngineNotReady
	}

	record, err := e.loadUserByID(ctx, identity.UserID)
	if err != nil {
		return err
	}

	if update.Email != nil {
		record.Email = *update.Email
	}
	if update.Phone != nil {
		record.Phone = *update.Phone
	}
	if update.Address != nil {
		record.Address = *update.Address
	}

	if err := e.saveUser(ctx, record); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventProfileUpdated, true, identity.UserID, identity.SessionID, nil, nil)
	return nil
}

// SetRole changes an account's role. This is the only write path for roles
// and it is admin-only; self-service flows cannot reach it.
//
// SetRole may return an error when input validation, dependency calls, or
// security checks fail. Sentinels: [ErrPermissionDenied], [ErrInvalidRole],
// [ErrUserNotFound].
func (e *Engine) SetRole(ctx context.Context, actor Identity, targetUserID string, role Role) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if actor.Role != RoleAdmin {
		return ErrPermissionDenied
	}
	if !role.Valid() {
		return ErrInvalidRole
	}

	record, err := e.loadUserByID(ctx, targetUserID)
	if err != nil {
		return err
	}

	previous := record.Role
	record.Role = role
	if err := e.saveUser(ctx, record); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventRoleChanged, true, targetUserID, "", nil,
		func() map[string]string {
			return map[string]string{
				"actor": actor.UserID,
				"from":  string(previous),
				"to":    string(role),
			}
		})
	return nil
}

// ChangePassword rotates the calling user's password after verifying the
// current one. A successful change resets the validity lifetime and
// force-ends every other session of the user.
//
// ChangePassword may return an error when input validation, dependency calls,
// or security checks fail. Sentinels: [ErrInvalidCredentials].
func (e *Engine) ChangePassword(ctx context.Context, identity Identity, current, next string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	record, err := e.loadUserByID(ctx, identity.UserID)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(current, record.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := e.passwordHash.Hash(next)
	if err != nil {
		return err
	}

	now := time.Now()
	record.PasswordHash = hash
	record.PasswordChangedAt = now
	record.PasswordExpiresAt = time.Time{}
	if e.config.Password.MaxAge > 0 {
		record.PasswordExpiresAt = now.Add(e.config.Password.MaxAge)
	}

	if err := e.saveUser(ctx, record); err != nil {
		return err
	}

	if _, err := e.sessionStore.EndAllExcept(ctx, identity.UserID, identity.SessionID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventPasswordChanged, true, identity.UserID, identity.SessionID, nil, nil)
	return nil
}
