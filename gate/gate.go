// Package gate decides whether a subject may perform an action on a
// resource type. A RoleTable grants "resource:action" permissions per role;
// a Guard checks the grant and then, for a concrete object, the ownership
// Policy registered for that resource type.
//
// The package knows nothing about the domain: the subject is any comparable
// type, usually a resolved tenant context.
package gate

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the verb half of a permission.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
	ActionInvite Action = "invite"
)

// All is the wildcard for either half of a permission.
const All = "*"

// Permission is "resource:action", e.g. "team:invite". Either half may be
// the wildcard.
type Permission string

// Everything grants every action on every resource.
const Everything Permission = All + ":" + All

// Perm builds resource:action.
func Perm(resource string, action Action) Permission {
	return Permission(resource + ":" + string(action))
}

// AllOf grants every action on resource.
func AllOf(resource string) Permission { return Perm(resource, All) }

// Split returns both halves; malformed permissions yield empty strings.
func (p Permission) Split() (string, Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok || res == "" || act == "" {
		return "", ""
	}
	return res, Action(act)
}

// Covers reports whether holding p allows the requested permission.
func (p Permission) Covers(requested Permission) bool {
	res, act := p.Split()
	reqRes, reqAct := requested.Split()
	if res == "" || reqRes == "" {
		return false
	}
	return (res == All || res == reqRes) && (act == All || act == reqAct)
}

// Reasons carried by a Denial.
var (
	ErrNoSubject  = errors.New("no subject")
	ErrNotGranted = errors.New("permission not granted")
	ErrNotOwner   = errors.New("resource not owned by subject")
)

// Denial is returned by Guard.Authorize. errors.Is matches its Reason.
type Denial struct {
	Resource string
	Action   Action
	Role     string
	Reason   error
}

func (d *Denial) Error() string {
	if d.Role == "" {
		return fmt.Sprintf("%s:%s denied: %v", d.Resource, d.Action, d.Reason)
	}
	return fmt.Sprintf("%s:%s denied for role %s: %v", d.Resource, d.Action, d.Role, d.Reason)
}

func (d *Denial) Unwrap() error { return d.Reason }
