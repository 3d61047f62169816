package authcore

import (
	"context"
	"time"
)

// Role is the coarse authorization level of an account.
type Role string

const (
	// RoleUser is an ordinary customer account.
	RoleUser Role = "user"
	// RoleRestaurant is a restaurant-owner account.
	RoleRestaurant Role = "restaurant"
	// RoleAdmin is a privileged operator account.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleRestaurant, RoleAdmin:
		return true
	}
	return false
}

// UserRecord is the full account record exchanged with [UserProvider].
//
// Email, Phone, and Address cross the provider boundary encrypted (envelope
// strings) when field encryption is enabled; the engine seals them before
// every write and opens them after every read, so engine callers always see
// plaintext.
type UserRecord struct {
	UserID   string
	Username string

	// PII, encrypted at rest.
	Email   string
	Phone   string
	Address string

	// PasswordHash is one-way (bcrypt); never decrypted, never exposed.
	PasswordHash string

	// Role must never be settable by the owning principal except through
	// [Engine.SetRole].
	Role Role

	// Lockout bookkeeping.
	LoginAttempts int
	LockedUntil   *time.Time

	// Password validity lifetime.
	PasswordChangedAt time.Time
	PasswordExpiresAt time.Time

	CreatedAt time.Time
}

// UserProvider is the interface hosts implement to connect authcore to their
// user database. Semantics are document-store-like: single-record reads and
// writes, assumed atomic per record, no multi-record transactions. Lookups
// of missing users must return an error matching [ErrUserNotFound]; creates
// colliding on username must return one matching [ErrDuplicateUser].
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, record UserRecord) (UserRecord, error)
	UpdateUser(ctx context.Context, record UserRecord) error
}

// Mailer delivers one-time codes out-of-band. Delivery failure never fails a
// login: the engine logs and continues, so a broken mail path cannot lock
// users out.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// NoOpMailer discards codes. Useful for tests and for deployments that rely
// on [OTPConfig.DevExposeCode].
type NoOpMailer struct{}

// SendOTP implements [Mailer].
func (NoOpMailer) SendOTP(context.Context, string, string, time.Time) error { return nil }

// Identity is the authenticated principal attached to a request after
// [Engine.Validate] succeeds. Ownership decisions must derive the acting
// user id from here, never from client-supplied path or body values.
type Identity struct {
	UserID    string
	Username  string
	Role      Role
	SessionID string
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmOTP]. Either
// Token is set (authentication complete) or RequireOTP is true and the
// caller must come back through ConfirmOTP with the challenge id.
type LoginResult struct {
	Token string

	RequireOTP   bool
	ChallengeID  string
	OTPExpiresAt time.Time

	// OTPCode echoes the generated code in the response. Populated only
	// when [OTPConfig.DevExposeCode] is set outside production mode.
	OTPCode string
}

// CreateAccountRequest is the input for [Engine.CreateAccount]. There is no
// role field: new accounts always receive [AccountConfig.DefaultRole], and
// promotion goes through the privileged [Engine.SetRole] path.
type CreateAccountRequest struct {
	Username string
	Password string
	Email    string
	Phone    string
	Address  string
}

// CreateAccountResult is returned by [Engine.CreateAccount].
type CreateAccountResult struct {
	UserID string
	Role   Role
}

// ProfileUpdate carries the self-service mutable fields of an account. Nil
// fields are left unchanged. Role and username are deliberately absent: a
// client payload carrying them has nowhere to land.
type ProfileUpdate struct {
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}
