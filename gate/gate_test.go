package gate_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/greasedesk/greasedesk/gate"
)

// subject mirrors the shape of a resolved tenant context.
type subject struct {
	UserID  string
	GroupID string
	Role    string
}

type site struct{ GroupID string }

func roles() *gate.RoleTable[subject] {
	return gate.NewRoleTable(func(s subject) string { return s.Role },
		gate.NewRole("OWNER", gate.Everything),
		gate.NewRole("STAFF",
			gate.AllOf("booking"),
			gate.Perm("site", gate.ActionView),
		),
	)
}

func newGuard() *gate.Guard[subject] {
	g := gate.NewGuard(roles())
	g.Register("site", gate.PolicyFunc[subject](func(_ context.Context, u subject, _ gate.Action, obj any) bool {
		s, ok := obj.(*site)
		return ok && s.GroupID == u.GroupID
	}))
	return g
}

func TestPermissionCovers(t *testing.T) {
	cases := []struct {
		held, requested gate.Permission
		want            bool
	}{
		{gate.Everything, gate.Perm("team", gate.ActionInvite), true},
		{gate.AllOf("booking"), gate.Perm("booking", gate.ActionCreate), true},
		{gate.AllOf("booking"), gate.Perm("jobcard", gate.ActionCreate), false},
		{gate.Perm("site", gate.ActionView), gate.Perm("site", gate.ActionView), true},
		{gate.Perm("site", gate.ActionView), gate.Perm("site", gate.ActionUpdate), false},
		{"*:view", gate.Perm("site", gate.ActionView), true},
		{"garbage", gate.Perm("site", gate.ActionView), false},
		{gate.Everything, "garbage", false},
	}
	for _, tc := range cases {
		if got := tc.held.Covers(tc.requested); got != tc.want {
			t.Errorf("%q covers %q = %v, want %v", tc.held, tc.requested, got, tc.want)
		}
	}
}

func TestRoleGrantsSortedAndDeduplicated(t *testing.T) {
	r := gate.NewRole("X", "b:view", "a:list", "b:view")
	if got := r.Grants(); !slices.Equal(got, []gate.Permission{"a:list", "b:view"}) {
		t.Fatalf("unexpected grants %v", got)
	}
	if names := roles().Names(); !slices.Equal(names, []string{"OWNER", "STAFF"}) {
		t.Fatalf("unexpected names %v", names)
	}
	if _, ok := roles().Lookup("GUEST"); ok {
		t.Fatal("GUEST is not defined")
	}
}

func TestGuardAuthorize(t *testing.T) {
	g := newGuard()
	ctx := context.Background()
	staff := subject{UserID: "u2", GroupID: "g1", Role: "STAFF"}

	if err := g.Authorize(ctx, staff, gate.ActionCreate, "booking", nil); err != nil {
		t.Fatalf("staff should create bookings: %v", err)
	}
	if err := g.Authorize(ctx, staff, gate.ActionView, "site", &site{GroupID: "g1"}); err != nil {
		t.Fatalf("own site should pass: %v", err)
	}

	cases := []struct {
		name     string
		sub      subject
		action   gate.Action
		resource string
		obj      any
		reason   error
	}{
		{"zero subject", subject{}, gate.ActionView, "site", nil, gate.ErrNoSubject},
		{"unknown role", subject{UserID: "u3", Role: "GUEST"}, gate.ActionView, "site", nil, gate.ErrNotGranted},
		{"missing grant", staff, gate.ActionInvite, "team", nil, gate.ErrNotGranted},
		{"other group", staff, gate.ActionView, "site", &site{GroupID: "g2"}, gate.ErrNotOwner},
		{"object without policy", staff, gate.ActionView, "booking", &site{GroupID: "g1"}, gate.ErrNotOwner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Authorize(ctx, tc.sub, tc.action, tc.resource, tc.obj)
			if !errors.Is(err, tc.reason) {
				t.Fatalf("expected %v, got %v", tc.reason, err)
			}
			var d *gate.Denial
			if !errors.As(err, &d) || d.Resource != tc.resource || d.Action != tc.action {
				t.Fatalf("expected a denial for %s:%s, got %#v", tc.resource, tc.action, err)
			}
		})
	}
}

func TestGuardAllowedIgnoresPolicies(t *testing.T) {
	g := newGuard()
	owner := subject{UserID: "u1", GroupID: "g1", Role: "OWNER"}
	if !g.Allowed(owner, gate.ActionUpdate, "site") {
		t.Error("owner holds every permission")
	}
	if g.Allowed(subject{}, gate.ActionView, "site") {
		t.Error("zero subject is never allowed")
	}
	if g.Allowed(subject{UserID: "u2", Role: "STAFF"}, gate.ActionDelete, "site") {
		t.Error("staff may only view sites")
	}
}

func TestDenialMessage(t *testing.T) {
	d := &gate.Denial{Resource: "team", Action: gate.ActionInvite, Role: "STAFF", Reason: gate.ErrNotGranted}
	if got := d.Error(); got != "team:invite denied for role STAFF: permission not granted" {
		t.Fatalf("unexpected message %q", got)
	}
}
