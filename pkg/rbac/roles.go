package rbac

import (
	"slices"
	"strings"

	"github.com/platinummonkey/estateops/pkg/auth"
)

// RoleSet is an immutable set of allowed roles
type RoleSet struct {
	roles []auth.Role
}

// NewRoleSet builds a set from the given roles, ignoring duplicates and
// unknown values
func NewRoleSet(roles ...auth.Role) RoleSet {
	set := make([]auth.Role, 0, len(roles))
	for _, r := range roles {
		if r.Valid() && !slices.Contains(set, r) {
			set = append(set, r)
		}
	}
	// keep declaration order so messages are stable
	slices.SortFunc(set, func(a, b auth.Role) int {
		return slices.Index(auth.AllRoles, a) - slices.Index(auth.AllRoles, b)
	})
	return RoleSet{roles: set}
}

// Contains reports whether r is allowed
func (s RoleSet) Contains(r auth.Role) bool {
	return slices.Contains(s.roles, r)
}

// Roles returns a copy of the members
func (s RoleSet) Roles() []auth.Role {
	return slices.Clone(s.roles)
}

// Len returns the number of roles in the set
func (s RoleSet) Len() int {
	return len(s.roles)
}

func (s RoleSet) String() string {
	names := make([]string, len(s.roles))
	for i, r := range s.roles {
		names[i] = string(r)
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Named allowed sets used by the API routes.
var (
	// StaffRoles is anyone working for the tenant
	StaffRoles = NewRoleSet(auth.RoleEmployee, auth.RoleManager, auth.RoleAdmin, auth.RoleOwner)

	// ManagerRoles gates team management. Owners are deliberately absent.
	ManagerRoles = NewRoleSet(auth.RoleManager, auth.RoleAdmin)

	// HRRoles gates payroll and personnel records
	HRRoles = NewRoleSet(auth.RoleManager, auth.RoleAdmin, auth.RoleOwner)

	// AdminRoles gates tenant administration
	AdminRoles = NewRoleSet(auth.RoleAdmin, auth.RoleOwner)

	// AnyRole admits every known role, customers included
	AnyRole = NewRoleSet(auth.AllRoles...)
)
