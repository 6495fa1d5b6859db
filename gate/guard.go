package gate

import "context"

// Policy checks a subject against one concrete object of a resource type.
type Policy[S any] interface {
	Can(ctx context.Context, s S, action Action, obj any) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc[S any] func(ctx context.Context, s S, action Action, obj any) bool

func (f PolicyFunc[S]) Can(ctx context.Context, s S, action Action, obj any) bool {
	return f(ctx, s, action, obj)
}

// Guard combines role grants with per-resource ownership policies.
// Register every policy before the guard is shared between goroutines.
type Guard[S comparable] struct {
	roles    *RoleTable[S]
	policies map[string]Policy[S]
}

func NewGuard[S comparable](roles *RoleTable[S]) *Guard[S] {
	return &Guard[S]{roles: roles, policies: make(map[string]Policy[S])}
}

// Register sets the ownership policy of resource, replacing any previous one.
func (g *Guard[S]) Register(resource string, p Policy[S]) {
	g.policies[resource] = p
}

// Allowed checks the role grant only.
func (g *Guard[S]) Allowed(s S, action Action, resource string) bool {
	var zero S
	if s == zero {
		return false
	}
	r, ok := g.roles.RoleOf(s)
	return ok && r.Allows(Perm(resource, action))
}

// Authorize checks the role grant and, when obj is non-nil, the ownership
// policy of resource. An object of a resource type without a policy is
// refused. Failures are *Denial values.
func (g *Guard[S]) Authorize(ctx context.Context, s S, action Action, resource string, obj any) error {
	var zero S
	if s == zero {
		return &Denial{Resource: resource, Action: action, Reason: ErrNoSubject}
	}
	r, ok := g.roles.RoleOf(s)
	if !ok || !r.Allows(Perm(resource, action)) {
		return &Denial{Resource: resource, Action: action, Role: r.Name, Reason: ErrNotGranted}
	}
	if obj == nil {
		return nil
	}
	p, ok := g.policies[resource]
	if !ok || !p.Can(ctx, s, action, obj) {
		return &Denial{Resource: resource, Action: action, Role: r.Name, Reason: ErrNotOwner}
	}
	return nil
}
