package session

// EndReason records why a session stopped being active.
type EndReason uint8

const (
	// EndReasonNone marks a session that is still active.
	EndReasonNone EndReason = iota
	// EndReasonLogout marks an explicit logout by the owner.
	EndReasonLogout
	// EndReasonTimeout marks expiry of the sliding inactivity window.
	EndReasonTimeout
	// EndReasonForced marks an administrative force-end.
	EndReasonForced
)

// String implements fmt.Stringer.
func (r EndReason) String() string {
	switch r {
	case EndReasonLogout:
		return "logout"
	case EndReasonTimeout:
		return "timeout"
	case EndReasonForced:
		return "forced"
	default:
		return "none"
	}
}

// Session defines a public type used by authcore APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SessionID string
	UserID    string
	Role      string

	// Device metadata captured at login.
	IP        string
	UserAgent string

	Active    bool
	EndReason EndReason

	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64
	EndedAt      int64
}
