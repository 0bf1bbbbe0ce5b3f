package api

import (
	"github.com/platinummonkey/estateops/pkg/rbac"
	"github.com/platinummonkey/estateops/pkg/records"
)

// KindPolicy names the collection path of a record kind and the roles
// admitted for each access level. Scopes are fixed per level: read for
// Read, write for Write, delete for Delete.
type KindPolicy struct {
	Kind       records.Kind
	Collection string
	Read       rbac.RoleSet
	Write      rbac.RoleSet
	Delete     rbac.RoleSet
}

// KindPolicies is the route table for record resources
var KindPolicies = []KindPolicy{
	{
		Kind:       records.KindContact,
		Collection: "contacts",
		Read:       rbac.StaffRoles,
		Write:      rbac.StaffRoles,
		Delete:     rbac.ManagerRoles,
	},
	{
		Kind:       records.KindProperty,
		Collection: "properties",
		Read:       rbac.AnyRole,
		Write:      rbac.StaffRoles,
		Delete:     rbac.ManagerRoles,
	},
	{
		Kind:       records.KindAppointment,
		Collection: "appointments",
		Read:       rbac.AnyRole,
		Write:      rbac.StaffRoles,
		Delete:     rbac.StaffRoles,
	},
	{
		Kind:       records.KindTask,
		Collection: "tasks",
		Read:       rbac.StaffRoles,
		Write:      rbac.StaffRoles,
		Delete:     rbac.ManagerRoles,
	},
	{
		Kind:       records.KindDocument,
		Collection: "documents",
		Read:       rbac.StaffRoles,
		Write:      rbac.StaffRoles,
		Delete:     rbac.AdminRoles,
	},
	{
		Kind:       records.KindPayrollRun,
		Collection: "payroll-runs",
		Read:       rbac.HRRoles,
		Write:      rbac.HRRoles,
		Delete:     rbac.AdminRoles,
	},
}

func (p KindPolicy) readRequirement() rbac.Requirement {
	return rbac.All(rbac.ReadScope, rbac.RequireRoleSet(p.Read))
}

func (p KindPolicy) writeRequirement() rbac.Requirement {
	return rbac.All(rbac.WriteScope, rbac.RequireRoleSet(p.Write))
}

func (p KindPolicy) deleteRequirement() rbac.Requirement {
	return rbac.All(rbac.DeleteScope, rbac.RequireRoleSet(p.Delete))
}
