package policy

import (
	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// Resource types known to the gate.
const (
	ResourceOnboarding = "onboarding"
	ResourceBilling    = "billing"
	ResourceSite       = "site"
	ResourceSettings   = "settings"
	ResourceTeam       = "team"
	ResourceBooking    = "booking"
	ResourceJobCard    = "jobcard"
)

// Roles returns the static grants of each tenant role. Unknown role names
// hold no permissions.
func Roles() *gate.RoleTable[tenant.Context] {
	return gate.NewRoleTable(func(tc tenant.Context) string { return tc.Role },
		gate.NewRole(models.RoleOwner, gate.Everything),
		gate.NewRole(models.RoleAdmin,
			gate.AllOf(ResourceOnboarding),
			gate.AllOf(ResourceSettings),
			gate.AllOf(ResourceSite),
			gate.AllOf(ResourceTeam),
			gate.AllOf(ResourceBooking),
			gate.AllOf(ResourceJobCard),
			gate.Perm(ResourceBilling, gate.ActionView),
		),
		gate.NewRole(models.RoleStaff,
			gate.AllOf(ResourceBooking),
			gate.AllOf(ResourceJobCard),
			gate.Perm(ResourceSite, gate.ActionView),
			gate.Perm(ResourceSettings, gate.ActionView),
		),
		gate.NewRole(models.RoleMechanic,
			gate.Perm(ResourceBooking, gate.ActionList),
			gate.Perm(ResourceJobCard, gate.ActionView),
			gate.Perm(ResourceJobCard, gate.ActionUpdate),
			gate.Perm(ResourceSite, gate.ActionView),
		),
	)
}
