package enums

import "slices"

// Role is the platform-level role carried in access tokens.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var validRoles = []Role{
	RoleCustomer,
	RoleAdmin,
	RoleSuperAdmin,
}

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	return slices.Contains(validRoles, r)
}

// IsAdmin reports whether the role may use back-office operations.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	return parse(value, validRoles, "role")
}
