package domain

import "strings"

// Role is the caller's account kind, resolved once by the identity middleware
// and carried explicitly through handlers and services.
type Role string

const (
	RoleDonor    Role = "donor"
	RolePatient  Role = "patient"
	RoleAdmin    Role = "admin"
	RoleHospital Role = "hospital"
)

// ParseRole maps a header value to a Role. Unknown or empty values yield
// RolePatient, the least privileged role able to post requests.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDonor:
		return RoleDonor
	case RoleAdmin:
		return RoleAdmin
	case RoleHospital:
		return RoleHospital
	default:
		return RolePatient
	}
}

// IsStaff reports whether the role acts on behalf of the platform or a
// hospital and may therefore manage requests it does not own.
func (r Role) IsStaff() bool { return r == RoleAdmin || r == RoleHospital }

// Identity is the authenticated caller as injected by the gateway.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Anonymous reports whether no caller id is present.
func (i Identity) Anonymous() bool { return strings.TrimSpace(i.ID) == "" }

// CanManageRequest reports whether the caller may change the status of a
// request created by requestedBy.
func (i Identity) CanManageRequest(requestedBy *string) bool {
	if i.Role.IsStaff() {
		return true
	}
	return requestedBy != nil && !i.Anonymous() && *requestedBy == i.ID
}
