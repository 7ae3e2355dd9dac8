package model

import "strings"

// Role is the app-level tier granted by a subscription plan. Roles are ordered:
// RoleFree < RoleBasic < RolePremium.
type Role int

const (
	RoleFree Role = iota
	RoleBasic
	RolePremium
)

// ParseRole maps the plan's role string to a Role. Unknown or empty values
// resolve to RoleFree.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return RoleBasic
	case "premium":
		return RolePremium
	default:
		return RoleFree
	}
}

func (r Role) String() string {
	switch r {
	case RoleBasic:
		return "basic"
	case RolePremium:
		return "premium"
	default:
		return "free"
	}
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}
