package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/tenant"
)

func book(t *testing.T, svc *WorkshopService, tc tenant.Context, at time.Time, reg string) *models.Booking {
	t.Helper()
	b, err := svc.CreateBooking(context.Background(), tc, BookingInput{
		ScheduledAt: at, CustomerName: "Sam", Vehicle: "BMW 520d", Registration: reg, Service: "Oil service",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return b
}

func TestTodayWindow(t *testing.T) {
	london, _ := time.LoadLocation("Europe/London")
	start, end := TodayWindow(time.Date(2025, 7, 1, 23, 30, 0, 0, time.UTC), london)
	if !start.Equal(time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)) || end.Sub(start) != 24*time.Hour {
		t.Fatalf("BST window: %v - %v", start.UTC(), end.UTC())
	}
}

func TestListTodayUsesSiteTimezone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tc := f.seedTenant(t, "owner@example.com", models.RoleOwner, true)
	other := f.seedTenant(t, "other@example.com", models.RoleOwner, true)
	svc := f.workshop()

	morning := book(t, svc, tc, time.Date(2025, 10, 28, 10, 0, 0, 0, time.UTC), "ab12 cde")
	book(t, svc, tc, time.Date(2025, 10, 28, 23, 30, 0, 0, time.UTC), "LATE 1")
	book(t, svc, tc, time.Date(2025, 10, 27, 20, 0, 0, 0, time.UTC), "YDAY 1")
	book(t, svc, other, time.Date(2025, 10, 28, 11, 0, 0, 0, time.UTC), "OTHER 1")

	if morning.Registration != "AB12 CDE" || morning.Status != models.BookingBooked {
		t.Fatalf("booking not normalized: %+v", morning)
	}

	rows, err := svc.ListToday(ctx, tc, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].ID != morning.ID || rows[1].Registration != "LATE 1" {
		t.Fatalf("london day: %+v", rows)
	}

	rows, err = svc.ListToday(ctx, tc, "Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Registration != "YDAY 1" || rows[1].ID != morning.ID {
		t.Fatalf("tokyo day: %+v", rows)
	}

	if _, err := svc.ListToday(ctx, tc, "Nowhere/Special"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad tz: %v", err)
	}
}

func TestWorkshopRequiresSite(t *testing.T) {
	f := newFixture(t)
	tc := f.seedTenant(t, "owner@example.com", models.RoleOwner, false)
	if _, err := f.workshop().ListToday(context.Background(), tc, ""); !errors.Is(err, apperr.ErrSiteMissing) {
		t.Fatalf("expected site_missing, got %v", err)
	}
}

func TestMechanicCannotBook(t *testing.T) {
	f := newFixture(t)
	owner := f.seedTenant(t, "owner@example.com", models.RoleOwner, true)
	mech := f.addMember(t, owner, "mech@example.com", models.RoleMechanic)
	svc := f.workshop()

	_, err := svc.CreateBooking(context.Background(), mech, BookingInput{
		ScheduledAt: fixedNow, Vehicle: "Golf", Registration: "X1", Service: "MOT",
	})
	if !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.ListToday(context.Background(), mech, ""); err != nil {
		t.Fatalf("mechanic may list bookings: %v", err)
	}
}

func TestJobCardFromBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tc := f.seedTenant(t, "owner@example.com", models.RoleOwner, true)
	svc := f.workshop()
	b := book(t, svc, tc, fixedNow, "AB12 CDE")

	card, err := svc.CreateJobCard(ctx, tc, JobCardInput{BookingID: b.ID, Technician: "Mo", MileageKm: 84000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if card.Vehicle != "BMW 520d" || card.Registration != "AB12 CDE" || models.StringValue(card.BookingID) != b.ID {
		t.Fatalf("details not copied: %+v", card)
	}
	if len(card.IntakeSlots) != len(models.DefaultIntakeSlots) || len(card.Tasks) != 1 || card.Tasks[0].Title != "Oil service" {
		t.Fatalf("unexpected card %+v", card)
	}
	var reloaded models.Booking
	f.db.Where("id = ?", b.ID).Take(&reloaded)
	if reloaded.Status != models.BookingInProgress {
		t.Fatalf("booking status %s", reloaded.Status)
	}

	mech := f.addMember(t, tc, "mech@example.com", models.RoleMechanic)
	toggled, err := svc.ToggleTask(ctx, mech, card.ID, card.Tasks[0].ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Tasks[0].Done {
		t.Fatal("task not marked done")
	}
	again, err := svc.ToggleTask(ctx, mech, card.ID, card.Tasks[0].ID)
	if err != nil || again.Tasks[0].Done {
		t.Fatalf("toggle back: %+v %v", again, err)
	}
	if _, err := svc.ToggleTask(ctx, mech, card.ID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
}

func TestAdHocJobCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tc := f.seedTenant(t, "owner@example.com", models.RoleOwner, true)
	svc := f.workshop()

	if _, err := svc.CreateJobCard(ctx, tc, JobCardInput{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("ad hoc card needs vehicle details, got %v", err)
	}
	card, err := svc.CreateJobCard(ctx, tc, JobCardInput{
		Vehicle: "Golf", Registration: "x1 abc", Tasks: []string{"Brake fluid flush", "Check tyres"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetJobCard(ctx, tc, card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Registration != "X1 ABC" || len(got.Tasks) != 2 || got.Tasks[1].Title != "Check tyres" || got.BookingID != nil {
		t.Fatalf("unexpected card %+v", got)
	}
}

func TestJobCardOfAnotherSite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedTenant(t, "a@example.com", models.RoleOwner, true)
	b := f.seedTenant(t, "b@example.com", models.RoleOwner, true)
	svc := f.workshop()

	card, err := svc.CreateJobCard(ctx, b, JobCardInput{Vehicle: "Golf", Registration: "B1", Tasks: []string{"MOT"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetJobCard(ctx, a, card.ID); !isCrossTenant(err) {
		t.Fatalf("expected cross_tenant, got %v", err)
	}
	if _, err := svc.ToggleTask(ctx, a, card.ID, card.Tasks[0].ID); !isCrossTenant(err) {
		t.Fatalf("expected cross_tenant on toggle, got %v", err)
	}
	bk := book(t, svc, b, fixedNow, "B2")
	if _, err := svc.CreateJobCard(ctx, a, JobCardInput{BookingID: bk.ID}); !isCrossTenant(err) {
		t.Fatalf("expected cross_tenant for foreign booking, got %v", err)
	}
	if _, err := svc.GetJobCard(ctx, a, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing card: %v", err)
	}
}
