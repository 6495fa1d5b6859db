// Package tenant resolves an authenticated principal to the tenant context
// that scopes every read and write of the request.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/auth"
	"github.com/greasedesk/greasedesk/httpx"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/logging"
	"github.com/greasedesk/greasedesk/internal/models"
)

// Context is the resolved {user, group, site, role} tuple.
// SiteID is empty until onboarding links a site.
type Context struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	GroupID string `json:"groupId"`
	SiteID  string `json:"siteId,omitempty"`
	Role    string `json:"role"`
}

// RequireSite fails with site_missing when no site is linked.
func (c Context) RequireSite() error {
	if c.SiteID == "" {
		return apperr.ErrSiteMissing
	}
	return nil
}

// Resolver derives a tenant context from a principal.
type Resolver interface {
	Resolve(ctx context.Context, p auth.Principal) (Context, error)
}

// DBResolver reads the user row on every call. Nothing is cached, so
// membership changes are visible to the next request.
type DBResolver struct {
	DB *gorm.DB
}

func NewDBResolver(db *gorm.DB) *DBResolver { return &DBResolver{DB: db} }

// Resolve looks the user up by id, falling back to email.
func (r *DBResolver) Resolve(ctx context.Context, p auth.Principal) (Context, error) {
	if p.Empty() {
		return Context{}, apperr.ErrNotAuthenticated
	}
	q := r.DB.WithContext(ctx)
	var user models.User
	var err error
	if p.UserID != "" {
		err = q.Where("id = ?", p.UserID).Take(&user).Error
	} else {
		err = q.Where("email = ?", models.NormalizeEmail(p.Email)).Take(&user).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Context{}, apperr.ErrUserNotFound
	}
	if err != nil {
		return Context{}, apperr.Internal(fmt.Errorf("resolve tenant: %w", err))
	}
	if !user.IsActive {
		return Context{}, apperr.ErrNotAuthenticated
	}
	if user.GroupID == nil || *user.GroupID == "" {
		return Context{}, apperr.ErrTenantContextMissing
	}
	return Context{
		UserID:  user.ID,
		Email:   user.Email,
		GroupID: *user.GroupID,
		SiteID:  models.StringValue(user.SiteID),
		Role:    user.Role,
	}, nil
}

type ctxKey struct{}

// WithContext stores tc on ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context stored by Middleware.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok && tc.UserID != ""
}

// Middleware resolves the tenant context once per request. Requests without
// a principal get 401; principals without a group get 409.
func Middleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Error(w, r, apperr.ErrNotAuthenticated)
				return
			}
			tc, err := res.Resolve(r.Context(), p)
			if err != nil {
				httpx.Error(w, r, err)
				return
			}
			ctx := WithContext(r.Context(), tc)
			l := logging.FromContext(ctx).With(zap.String("user_id", tc.UserID), zap.String("group_id", tc.GroupID))
			next.ServeHTTP(w, r.WithContext(logging.WithContext(ctx, l)))
		})
	}
}

// RequireSite rejects requests whose tenant has no linked site.
func RequireSite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := FromContext(r.Context())
		if !ok {
			httpx.Error(w, r, apperr.ErrNotAuthenticated)
			return
		}
		if err := tc.RequireSite(); err != nil {
			httpx.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
