package services

import (
	"context"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// Authorizer checks a tenant context against resource:action and, when
// resource is non-nil, its ownership.
type Authorizer interface {
	Authorize(ctx context.Context, tc tenant.Context, action gate.Action, resourceType string, resource any) error
}
