package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/auth"
)

const tenantID = "6f1c1f0e-8a51-4a49-9a3c-9b6f3b2a6d10"

func principal(t *testing.T, role auth.Role, scopes ...auth.Scope) auth.Principal {
	t.Helper()
	p, err := auth.NewPrincipal("user-1", "user@example.com", role, tenantID, scopes)
	require.NoError(t, err)
	return p
}

func TestScopeComposition(t *testing.T) {
	reader := principal(t, auth.RoleEmployee, auth.ScopeRead)

	_, err := Require(reader, ReadScope)
	assert.NoError(t, err)

	_, err = Require(reader, WriteScope)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = Require(reader, DeleteScope)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdminScopeDoesNotImplyOthers(t *testing.T) {
	admin := principal(t, auth.RoleAdmin, auth.ScopeAdmin)

	_, err := Require(admin, AdminScope)
	assert.NoError(t, err)

	_, err = Require(admin, ReadScope)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRoleSets(t *testing.T) {
	tests := []struct {
		set     RoleSet
		name    string
		allowed []auth.Role
		denied  []auth.Role
	}{
		{StaffRoles, "staff", []auth.Role{auth.RoleEmployee, auth.RoleManager, auth.RoleAdmin, auth.RoleOwner}, []auth.Role{auth.RoleCustomer}},
		{ManagerRoles, "manager", []auth.Role{auth.RoleManager, auth.RoleAdmin}, []auth.Role{auth.RoleOwner, auth.RoleEmployee, auth.RoleCustomer}},
		{HRRoles, "hr", []auth.Role{auth.RoleManager, auth.RoleAdmin, auth.RoleOwner}, []auth.Role{auth.RoleEmployee, auth.RoleCustomer}},
		{AdminRoles, "admin", []auth.Role{auth.RoleAdmin, auth.RoleOwner}, []auth.Role{auth.RoleManager, auth.RoleEmployee, auth.RoleCustomer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := RequireRoleSet(tt.set)
			for _, r := range tt.allowed {
				_, err := Require(principal(t, r, auth.ScopeRead), gate)
				assert.NoError(t, err, "role %s", r)
			}
			for _, r := range tt.denied {
				_, err := Require(principal(t, r, auth.ScopeRead), gate)
				assert.ErrorIs(t, err, ErrForbidden, "role %s", r)
			}
		})
	}
}

func TestAllNeverWidens(t *testing.T) {
	// owner passes HR but not manager; the combination must reject it
	gate := All(RequireRoleSet(HRRoles), RequireRoleSet(ManagerRoles))
	owner := principal(t, auth.RoleOwner, auth.ScopeRead)
	manager := principal(t, auth.RoleManager, auth.ScopeRead)

	_, err := Require(owner, gate)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = Require(manager, gate)
	assert.NoError(t, err)
}

func TestTargetRoleOrAdmin(t *testing.T) {
	gate := RequireRoles(auth.RoleManager, auth.RoleAdmin)

	_, err := Require(principal(t, auth.RoleAdmin), gate)
	assert.NoError(t, err)
	_, err = Require(principal(t, auth.RoleManager), gate)
	assert.NoError(t, err)
	_, err = Require(principal(t, auth.RoleOwner), gate)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeniedErrorMessages(t *testing.T) {
	p := principal(t, auth.RoleEmployee, auth.ScopeRead)

	_, err := Require(p, All(ReadScope, WriteScope))
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "scope write required", denied.Detail())

	_, err = Require(p, RequireRoleSet(ManagerRoles))
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "role in {manager, admin} required", denied.Detail())
	assert.Equal(t, "forbidden: role in {manager, admin} required", err.Error())
}

func TestRequireZeroPrincipal(t *testing.T) {
	_, err := Require(auth.Principal{}, ReadScope)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAllString(t *testing.T) {
	gate := All(WriteScope, All(RequireRoles(auth.RoleOwner, auth.RoleAdmin)))
	assert.Equal(t, "scope write and role in {admin, owner}", gate.String())
}

func TestRoleSet(t *testing.T) {
	set := NewRoleSet(auth.RoleOwner, auth.RoleEmployee, auth.RoleOwner, "intern")
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []auth.Role{auth.RoleEmployee, auth.RoleOwner}, set.Roles())
	assert.Equal(t, "{employee, owner}", set.String())
}
