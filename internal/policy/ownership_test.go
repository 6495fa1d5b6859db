package policy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

func owner(group, site string) tenant.Context {
	return tenant.Context{UserID: "u1", GroupID: group, SiteID: site, Role: models.RoleOwner}
}

func TestTenantPolicy(t *testing.T) {
	p := NewTenantPolicy()
	tc := owner("g1", "s1")
	if !p.Can(context.Background(), tc, gate.ActionList, nil) {
		t.Error("nil resource should pass")
	}
	if !p.Can(context.Background(), tc, gate.ActionUpdate, &models.Site{GroupID: "g1"}) {
		t.Error("own site should pass")
	}
	if p.Can(context.Background(), tc, gate.ActionUpdate, &models.Site{GroupID: "g2"}) {
		t.Error("other tenant's site must be denied")
	}
	if p.Can(context.Background(), tc, gate.ActionUpdate, "not owned") {
		t.Error("resources without an owner are denied")
	}
	if p.Can(context.Background(), tenant.Context{UserID: "u1"}, gate.ActionUpdate, &models.Site{GroupID: ""}) {
		t.Error("empty group must never match")
	}
}

func TestSiteScopePolicy(t *testing.T) {
	p := NewSiteScopePolicy()
	tc := owner("g1", "s1")
	if !p.Can(context.Background(), tc, gate.ActionView, &models.Booking{GroupID: "g1", SiteID: "s1"}) {
		t.Error("booking at own site should pass")
	}
	if p.Can(context.Background(), tc, gate.ActionView, &models.Booking{GroupID: "g1", SiteID: "s2"}) {
		t.Error("booking at another site must be denied")
	}
	if p.Can(context.Background(), tc, gate.ActionView, &models.Site{GroupID: "g1"}) {
		t.Error("site-scoped policy needs a site-scoped resource")
	}
}

func TestAuthGateErrors(t *testing.T) {
	ag := NewAuthGate()
	ctx := context.Background()

	mech := tenant.Context{UserID: "u2", GroupID: "g1", SiteID: "s1", Role: models.RoleMechanic}
	if err := ag.Authorize(ctx, mech, gate.ActionInvite, ResourceTeam, nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("mechanic invite should be forbidden, got %v", err)
	}
	admin := tenant.Context{UserID: "u3", GroupID: "g1", SiteID: "s1", Role: models.RoleAdmin}
	if err := ag.Authorize(ctx, admin, gate.ActionInvite, ResourceTeam, nil); err != nil {
		t.Fatalf("admin invite should pass, got %v", err)
	}
	err := ag.Authorize(ctx, owner("g1", "s1"), gate.ActionUpdate, ResourceSettings, &models.Site{GroupID: "g2"})
	if !errors.Is(err, apperr.ErrCrossTenant) {
		t.Fatalf("cross tenant write should be rejected, got %v", err)
	}
	if err := ag.Authorize(ctx, tenant.Context{}, gate.ActionView, ResourceSite, nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("zero context should be refused, got %v", err)
	}
	unknownRole := tenant.Context{UserID: "u4", GroupID: "g1", Role: "GUEST"}
	if ag.Allowed(unknownRole, gate.ActionList, ResourceBooking) {
		t.Fatal("unknown roles have no permissions")
	}
}

func TestRolePermissions(t *testing.T) {
	ag := NewAuthGate()
	cases := []struct {
		role     string
		action   gate.Action
		resource string
		want     bool
	}{
		{models.RoleOwner, gate.ActionInvite, ResourceTeam, true},
		{models.RoleAdmin, gate.ActionUpdate, ResourceSettings, true},
		{models.RoleStaff, gate.ActionUpdate, ResourceSettings, false},
		{models.RoleStaff, gate.ActionList, ResourceBooking, true},
		{models.RoleStaff, gate.ActionInvite, ResourceTeam, false},
		{models.RoleMechanic, gate.ActionUpdate, ResourceJobCard, true},
		{models.RoleMechanic, gate.ActionCreate, ResourceBooking, false},
		{models.RoleMechanic, gate.ActionCreate, ResourceOnboarding, false},
	}
	for _, tc := range cases {
		sub := tenant.Context{UserID: "u", GroupID: "g", SiteID: "s", Role: tc.role}
		if got := ag.Allowed(sub, tc.action, tc.resource); got != tc.want {
			t.Errorf("%s %s:%s = %v, want %v", tc.role, tc.resource, tc.action, got, tc.want)
		}
	}
}

func TestRequirePermission(t *testing.T) {
	ag := NewAuthGate()
	h := ag.RequirePermission(ResourceTeam, gate.ActionInvite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without tenant, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	staff := tenant.Context{UserID: "u", GroupID: "g", Role: models.RoleStaff}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(tenant.WithContext(req.Context(), staff)))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(tenant.WithContext(req.Context(), owner("g", ""))))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected owner to pass, got %d", rr.Code)
	}
}
