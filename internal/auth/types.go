package auth

import (
	"errors"
	"regexp"
)

// agentIDPattern defines the valid format for agent identities:
// alphanumeric, dots, hyphens, underscores, colons, 1-128 characters.
var agentIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]{1,128}$`)

// IsValidAgentID checks if an agent identity meets format requirements.
func IsValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleAgent can take ALLOWED locks and issue commands it holds.
	RoleAgent Role = "agent"

	// RoleOperator can additionally block commands for everyone.
	RoleOperator Role = "operator"

	// RoleAdmin can additionally read the audit trail and remove any lock.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleAgent, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidAgentID = errors.New("invalid agent id")
	ErrInvalidRole    = errors.New("invalid role")
	ErrForbidden      = errors.New("insufficient permissions")
)
