package roster

// Action is a UI or gateway operation subject to the role gate.
type Action string

const (
	// ActionViewRoster reads the user list.
	ActionViewRoster Action = "roster.view"
	// ActionCreateUser adds a roster entry.
	ActionCreateUser Action = "user.create"
	// ActionEditUser updates an existing entry.
	ActionEditUser Action = "user.edit"
	// ActionDeleteUser removes an entry.
	ActionDeleteUser Action = "user.delete"
)

// IsAllowed is the single source of truth for role-based permission
// checks. Pure, no I/O. ADMIN is allowed everything; USER and any role
// value outside the known set get least privilege: ViewRoster only.
func IsAllowed(role UserRole, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return action == ActionViewRoster
}

// IsValid checks if the role is one of the predefined valid roles.
func IsValidRole(role UserRole) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// CanMutateRoster reports whether the role may perform any destructive
// roster action. Convenience for UIs deciding whether to render the
// action column at all.
func CanMutateRoster(role UserRole) bool {
	return IsAllowed(role, ActionCreateUser) &&
		IsAllowed(role, ActionEditUser) &&
		IsAllowed(role, ActionDeleteUser)
}
