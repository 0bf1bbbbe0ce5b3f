// Package rbac provides the scope and role gates that run before a handler.
//
// # Overview
//
// A Requirement is a pure predicate over an authenticated auth.Principal.
// Two families exist and compose freely:
//
//	rbac.RequireScope(auth.ScopeWrite)              // token must carry "write"
//	rbac.RequireRoles(auth.RoleManager, auth.RoleAdmin) // role must be in the set
//
// Role requirements are explicit allowed sets written at each call site.
// There is no role ranking: HRRoles admits owner while ManagerRoles does
// not, and combining requirements with All never widens either set.
//
// "Target role or admin" is written as RequireRoles(target, auth.RoleAdmin).
//
// # Usage
//
//	gate := rbac.All(rbac.RequireScope(auth.ScopeDelete), rbac.RequireRoleSet(rbac.ManagerRoles))
//	if _, err := rbac.Require(principal, gate); err != nil {
//		// err wraps rbac.ErrForbidden
//	}
package rbac
