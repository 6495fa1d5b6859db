package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open(context.Background(), Options{
		DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = Close(conn) })
	return conn
}

func TestDriverFor(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/greasedesk": DriverPostgres,
		"host=localhost user=gd dbname=greasedesk": DriverPostgres,
		"file:greasedesk.db?_foreign_keys=on":      DriverSQLite,
		"file:TestX?mode=memory&cache=shared":      DriverSQLite,
	}
	for dsn, want := range cases {
		if got := DriverFor(dsn); got != want {
			t.Errorf("DriverFor(%q) = %s, want %s", dsn, got, want)
		}
	}
}

func TestNormalizeDSN(t *testing.T) {
	got := NormalizeDSN(`"host=localhost   user=gd dbname=greasedesk"`)
	if got != "host=localhost user=gd dbname=greasedesk sslmode=disable" {
		t.Fatalf("unexpected %q", got)
	}
	if NormalizeDSN(" postgres://x/y ") != "postgres://x/y" {
		t.Fatalf("url DSN should pass through")
	}
}

func TestUniqueViolationTranslated(t *testing.T) {
	conn := openTestDB(t)
	g := models.Group{GroupName: "A", BillingEmail: "a@example.com"}
	if err := conn.Create(&g).Error; err != nil {
		t.Fatal(err)
	}
	dup := models.Group{GroupName: "B", BillingEmail: "a@example.com"}
	err := conn.Create(&dup).Error
	if !IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if !errors.Is(TranslateError(err, apperr.ErrEmailAlreadyExists), apperr.ErrEmailAlreadyExists) {
		t.Fatalf("expected email_already_exists")
	}
	if !errors.Is(TranslateError(err, nil), apperr.ErrConflict) {
		t.Fatalf("expected generic conflict")
	}
}

func TestTranslateError(t *testing.T) {
	if TranslateError(nil, nil) != nil {
		t.Fatal("nil should stay nil")
	}
	if !errors.Is(TranslateError(gorm.ErrRecordNotFound, nil), apperr.ErrNotFound) {
		t.Fatal("record not found should map to not found")
	}
	pg := &pgconn.PgError{Code: "23505"}
	if !errors.Is(TranslateError(fmt.Errorf("insert: %w", pg), nil), apperr.ErrConflict) {
		t.Fatal("pg unique violation should map to conflict")
	}
	if apperr.KindOf(TranslateError(errors.New("boom"), nil)) != apperr.KindInternal {
		t.Fatal("unknown errors are internal")
	}
	if !errors.Is(TranslateError(apperr.ErrCrossTenant, nil), apperr.ErrCrossTenant) {
		t.Fatal("typed errors pass through")
	}
}

func TestSeedIdempotent(t *testing.T) {
	conn := openTestDB(t)
	cfg := SeedConfig{
		GroupName: "Demo Garage Group", BillingEmail: "billing@seed.local", SiteName: "Birmingham",
		AdminEmail: "admin@seed.local", AdminName: "Seed Admin", VATPercent: 20, LabourRate: 75, WithBookings: true,
	}
	now := time.Now()
	first, err := Seed(context.Background(), conn, cfg, now)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	second, err := Seed(context.Background(), conn, cfg, now)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if first != second {
		t.Fatalf("seed not stable: %+v vs %+v", first, second)
	}
	counts := map[string]any{
		"groups":   &models.Group{},
		"sites":    &models.Site{},
		"users":    &models.User{},
		"taxrates": &models.TaxRate{},
		"labour":   &models.ServiceCatalogue{},
		"jobcards": &models.JobCard{},
	}
	for name, m := range counts {
		var n int64
		conn.Model(m).Count(&n)
		if n != 1 {
			t.Errorf("%s: expected 1 row, got %d", name, n)
		}
	}
	var bookings int64
	conn.Model(&models.Booking{}).Count(&bookings)
	if bookings != 3 {
		t.Errorf("expected 3 bookings, got %d", bookings)
	}
	var site models.Site
	if err := conn.First(&site, "id = ?", first.SiteID).Error; err != nil {
		t.Fatal(err)
	}
	if len(site.SupportedCurrencies) != 3 || site.SupportedCurrencies[0] != "GBP" {
		t.Errorf("unexpected currencies %v", site.SupportedCurrencies)
	}
}
