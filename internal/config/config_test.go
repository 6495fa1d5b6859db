package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("BASE_URL", "http://localhost:3000/")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 8080 || c.Addr() != ":8080" {
		t.Fatalf("unexpected port %d", c.Port)
	}
	if c.BaseURL != "http://localhost:3000" {
		t.Fatalf("trailing slash not trimmed: %q", c.BaseURL)
	}
	if c.SessionSecret != DevSessionSecret {
		t.Fatalf("expected dev secret fallback")
	}
	if c.VerificationTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected verification ttl %v", c.VerificationTokenTTL)
	}
	if c.TrialDays != 30 {
		t.Fatalf("unexpected trial days %d", c.TrialDays)
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without session secret")
	}
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.Production() {
		t.Fatalf("expected production")
	}
}

func TestAllowedOriginsList(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("ALLOWED_ORIGINS", "https://app.greasedesk.com,https://admin.greasedesk.com")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", c.AllowedOrigins)
	}
}
