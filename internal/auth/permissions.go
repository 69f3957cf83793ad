package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermLockRead      Permission = "lock:read"
	PermLockSelect    Permission = "lock:select"
	PermLockBlock     Permission = "lock:block"
	PermLockDeleteAny Permission = "lock:delete:any"
	PermCommandRead   Permission = "command:read"
	PermCommandIssue  Permission = "command:issue"
	PermAuditRead     Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleAgent: {
		PermLockRead,
		PermLockSelect,
		PermCommandRead,
		PermCommandIssue,
	},
	RoleOperator: {
		PermLockRead,
		PermLockSelect,
		PermLockBlock,
		PermCommandRead,
		PermCommandIssue,
	},
	RoleAdmin: {
		PermLockRead,
		PermLockSelect,
		PermLockBlock,
		PermLockDeleteAny,
		PermCommandRead,
		PermCommandIssue,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
