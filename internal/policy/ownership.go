package policy

import (
	"context"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// TenantPolicy allows access to rows owned by the caller's group.
type TenantPolicy struct{}

func NewTenantPolicy() *TenantPolicy { return &TenantPolicy{} }

// Can passes list/create calls with no resource; profile permissions
// already control those. Resources without an owner are denied.
func (p *TenantPolicy) Can(_ context.Context, tc tenant.Context, _ gate.Action, resource any) bool {
	if resource == nil {
		return true
	}
	owned, ok := resource.(models.GroupOwned)
	if !ok {
		return false
	}
	return tc.GroupID != "" && owned.GetGroupID() == tc.GroupID
}

// SiteScopePolicy additionally requires the row to belong to the caller's site.
type SiteScopePolicy struct{}

func NewSiteScopePolicy() *SiteScopePolicy { return &SiteScopePolicy{} }

func (p *SiteScopePolicy) Can(_ context.Context, tc tenant.Context, _ gate.Action, resource any) bool {
	if resource == nil {
		return true
	}
	scoped, ok := resource.(models.SiteScoped)
	if !ok {
		return false
	}
	return tc.GroupID != "" && tc.SiteID != "" &&
		scoped.GetGroupID() == tc.GroupID && scoped.GetSiteID() == tc.SiteID
}
