package roster

// UserRole is the authorization level attached to a session or record.
type UserRole = string

const (
	// RoleUser is the standard organization access level (view only).
	RoleUser UserRole = "USER"
	// RoleAdmin has full management permissions over the roster.
	RoleAdmin UserRole = "ADMIN"
)

// UserRecord is the read-through copy of a roster entry. Its lifecycle is
// owned by the gateway; the client only holds what the last list returned.
type UserRecord struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role,omitempty"`
}

// EnsureRole applies the optional-role default. It runs at the boundary
// where records enter the system, never in display code.
func (u *UserRecord) EnsureRole() {
	if u == nil {
		return
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
}

// Session is an authenticated identity plus its bearer token. Created only
// after a successful OTP verification, destroyed on logout.
type Session struct {
	Token string     `json:"token"`
	User  UserRecord `json:"user"`
}

// Role returns the session's effective role, least-privilege when the
// session is nil.
func (s *Session) Role() UserRole {
	if s == nil {
		return ""
	}
	return s.User.Role
}
