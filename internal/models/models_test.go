package models

import (
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Lewis@Example.com "); got != "lewis@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}

func TestUserBeforeCreate(t *testing.T) {
	u := &User{Email: "Tech@Example.com"}
	if err := u.BeforeCreate(nil); err != nil {
		t.Fatal(err)
	}
	if u.ID == "" {
		t.Error("expected generated id")
	}
	if u.Email != "tech@example.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	first := u.ID
	_ = u.BeforeCreate(nil)
	if u.ID != first {
		t.Error("existing id must be kept")
	}
}

func TestPendingUser(t *testing.T) {
	if !(&User{PasswordHash: InvitePendingHash}).Pending() {
		t.Error("placeholder hash should be pending")
	}
	if (&User{PasswordHash: "$2a$12$abc"}).Pending() {
		t.Error("bcrypt hash should not be pending")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleOwner, RoleAdmin, RoleStaff, RoleMechanic} {
		if !ValidRole(r) {
			t.Errorf("%s should be valid", r)
		}
	}
	if ValidRole("mechanic") || ValidRole("") {
		t.Error("roles are case sensitive labels")
	}
}

func TestOutranks(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{RoleOwner, RoleAdmin, true},
		{RoleAdmin, RoleStaff, true},
		{RoleStaff, RoleMechanic, true},
		{RoleAdmin, RoleAdmin, false},
		{RoleMechanic, RoleOwner, false},
		{RoleMechanic, "GUEST", true},
	}
	for _, tc := range cases {
		if got := Outranks(tc.a, tc.b); got != tc.want {
			t.Errorf("Outranks(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNewDefaultSite(t *testing.T) {
	s := NewDefaultSite("g1", "AutoFix Birmingham", "B1 2AB")
	if s.Timezone != "Europe/London" || s.CurrencyCode != "GBP" || s.Locale != "en-GB" {
		t.Errorf("unexpected regional defaults %+v", s)
	}
	if s.PricingDisplayMode != PricingExVAT {
		t.Errorf("unexpected pricing mode %s", s.PricingDisplayMode)
	}
	if StringValue(s.DefaultForGroupID) != "g1" {
		t.Error("default site must carry the group key")
	}
	s.SupportedCurrencies[0] = "XXX"
	if DefaultSupportedCurrencies[0] != "GBP" {
		t.Error("defaults must be copied, not shared")
	}
}

func TestVerificationTokenExpired(t *testing.T) {
	now := time.Now()
	tok := &VerificationToken{Expires: now.Add(time.Hour)}
	if tok.Expired(now) {
		t.Error("token should be valid")
	}
	if !tok.Expired(now.Add(2 * time.Hour)) {
		t.Error("token should be expired")
	}
}

func TestOwnershipInterfaces(t *testing.T) {
	var _ GroupOwned = &Site{}
	var _ SiteScoped = &Booking{}
	var _ SiteScoped = &JobCard{}
	var _ SiteScoped = &ServiceCatalogue{}
	b := &Booking{GroupID: "g", SiteID: "s"}
	if b.GetGroupID() != "g" || b.GetSiteID() != "s" {
		t.Error("unexpected ownership accessors")
	}
}
