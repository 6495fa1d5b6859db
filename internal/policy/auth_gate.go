// Package policy wires the generic gate to tenant contexts: role profiles,
// tenant ownership policies, and HTTP middleware.
package policy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// AuthGate is the central authorization point.
type AuthGate struct {
	Guard *gate.Guard[tenant.Context]
}

// NewAuthGate creates a gate with role profiles and the tenant policies
// registered for every resource type.
func NewAuthGate() *AuthGate {
	g := gate.NewGuard(Roles())
	tenantPolicy := NewTenantPolicy()
	g.Register(ResourceOnboarding, tenantPolicy)
	g.Register(ResourceBilling, tenantPolicy)
	g.Register(ResourceSite, tenantPolicy)
	g.Register(ResourceSettings, tenantPolicy)
	g.Register(ResourceTeam, tenantPolicy)
	siteScope := NewSiteScopePolicy()
	g.Register(ResourceBooking, siteScope)
	g.Register(ResourceJobCard, siteScope)
	return &AuthGate{Guard: g}
}

// Authorize checks tc against resource:action and, when resource is given,
// its ownership. Failures are returned as API errors.
func (ag *AuthGate) Authorize(ctx context.Context, tc tenant.Context, action gate.Action, resourceType string, resource any) error {
	return translate(ag.Guard.Authorize(ctx, tc, action, resourceType, resource))
}

// Allowed checks only the role grant.
func (ag *AuthGate) Allowed(tc tenant.Context, action gate.Action, resourceType string) bool {
	return ag.Guard.Allowed(tc, action, resourceType)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gate.ErrNotOwner):
		return apperr.Wrap(apperr.ErrCrossTenant, err)
	case errors.Is(err, gate.ErrNotGranted), errors.Is(err, gate.ErrNoSubject):
		return apperr.Wrap(apperr.ErrForbidden, err)
	default:
		return apperr.Internal(fmt.Errorf("authorize: %w", err))
	}
}

// RequirePermission returns middleware that checks the role permission of
// the resolved tenant context. It must run after tenant.Middleware.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := tenant.FromContext(r.Context())
			if !ok {
				httpx.Error(w, r, apperr.ErrNotAuthenticated)
				return
			}
			if err := ag.Authorize(r.Context(), tc, action, resourceType, nil); err != nil {
				httpx.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
