package gate

import (
	"slices"
)

// Role is a named set of grants.
type Role struct {
	Name   string
	grants []Permission
}

func NewRole(name string, grants ...Permission) Role {
	return Role{Name: name, grants: slices.Clone(grants)}
}

// Allows reports whether any grant covers p.
func (r Role) Allows(p Permission) bool {
	return slices.ContainsFunc(r.grants, func(g Permission) bool { return g.Covers(p) })
}

// Grants returns the role's permissions, sorted.
func (r Role) Grants() []Permission {
	out := slices.Clone(r.grants)
	slices.Sort(out)
	return slices.Compact(out)
}

// RoleTable maps subjects to roles through a key function, typically the
// subject's role name. The table is read-only after construction.
type RoleTable[S any] struct {
	key   func(S) string
	roles map[string]Role
}

func NewRoleTable[S any](key func(S) string, roles ...Role) *RoleTable[S] {
	t := &RoleTable[S]{key: key, roles: make(map[string]Role, len(roles))}
	for _, r := range roles {
		t.roles[r.Name] = r
	}
	return t
}

// RoleOf returns the subject's role; unknown role names report false.
func (t *RoleTable[S]) RoleOf(s S) (Role, bool) {
	r, ok := t.roles[t.key(s)]
	return r, ok
}

// Lookup returns a role by name.
func (t *RoleTable[S]) Lookup(name string) (Role, bool) {
	r, ok := t.roles[name]
	return r, ok
}

// Names lists the defined roles, sorted.
func (t *RoleTable[S]) Names() []string {
	out := make([]string, 0, len(t.roles))
	for n := range t.roles {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
