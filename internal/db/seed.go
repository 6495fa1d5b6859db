package db

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greasedesk/greasedesk/internal/models"
)

// SeedConfig describes the demo tenant. Every value can be overridden with
// SEED_* environment variables.
type SeedConfig struct {
	GroupName     string  `envconfig:"group_name" default:"Demo Garage Group"`
	BillingEmail  string  `envconfig:"billing_email" default:"billing@seed.local"`
	SiteName      string  `envconfig:"site_name" default:"Birmingham"`
	AdminEmail    string  `envconfig:"admin_email" default:"admin@seed.local"`
	AdminName     string  `envconfig:"admin_name" default:"Seed Admin"`
	AdminPassHash string  `envconfig:"admin_passhash"`
	VATPercent    float64 `envconfig:"vat_percent" default:"20.00"`
	LabourRate    float64 `envconfig:"labour_rate_gbp" default:"75.00"`
	WithBookings  bool    `envconfig:"with_bookings" default:"true"`
}

// LoadSeedConfig reads SEED_* variables.
func LoadSeedConfig() (SeedConfig, error) {
	var c SeedConfig
	if err := envconfig.Process("seed", &c); err != nil {
		return c, fmt.Errorf("seed config: %w", err)
	}
	return c, nil
}

// SeedResult reports what the seed touched.
type SeedResult struct {
	GroupID string
	SiteID  string
	UserID  string
}

// Seed creates a demo tenant. Running it again leaves existing rows alone.
func Seed(ctx context.Context, conn *gorm.DB, cfg SeedConfig, now time.Time) (SeedResult, error) {
	var res SeedResult
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		group := models.Group{
			GroupName:    cfg.GroupName,
			BillingEmail: models.NormalizeEmail(cfg.BillingEmail),
			TradingName:  "GreaseDesk Seed",
		}
		if err := tx.Where(models.Group{BillingEmail: group.BillingEmail}).FirstOrCreate(&group).Error; err != nil {
			return fmt.Errorf("group: %w", err)
		}

		billing := models.GroupBilling{
			GroupID:         group.ID,
			PlanName:        "Core Pro",
			Status:          models.BillingOK,
			RetentionMonths: 24,
			IncludedSites:   1,
			ActiveSitesCnt:  1,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&billing).Error; err != nil {
			return fmt.Errorf("billing: %w", err)
		}

		var site models.Site
		err := tx.Where("group_id = ? AND site_name = ?", group.ID, cfg.SiteName).First(&site).Error
		if IsNotFound(err) {
			site = *models.NewDefaultSite(group.ID, cfg.SiteName, "Address not set")
			err = tx.Create(&site).Error
		}
		if err != nil {
			return fmt.Errorf("site: %w", err)
		}

		hash := cfg.AdminPassHash
		if hash == "" {
			hash = models.InvitePendingHash
		}
		user := models.User{
			Email:        models.NormalizeEmail(cfg.AdminEmail),
			Name:         cfg.AdminName,
			PasswordHash: hash,
			Role:         models.RoleOwner,
			GroupID:      &group.ID,
			SiteID:       &site.ID,
			IsActive:     true,
		}
		if err := tx.Where(models.User{Email: user.Email}).FirstOrCreate(&user).Error; err != nil {
			return fmt.Errorf("user: %w", err)
		}

		vat := models.TaxRate{GroupID: group.ID, Name: models.VATRateName, Percentage: cfg.VATPercent, ValidFrom: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&vat).Error; err != nil {
			return fmt.Errorf("tax rate: %w", err)
		}
		labour := models.ServiceCatalogue{
			GroupID:                group.ID,
			SiteID:                 site.ID,
			ServiceCode:            models.LabourServiceCode,
			Name:                   models.LabourServiceName,
			Description:            models.LabourServiceDesc,
			DefaultDurationMinutes: models.LabourMinutes,
			DefaultLabourRate:      cfg.LabourRate,
			DefaultPrice:           cfg.LabourRate,
			VATRate:                cfg.VATPercent,
			IsActive:               true,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&labour).Error; err != nil {
			return fmt.Errorf("labour: %w", err)
		}

		if cfg.WithBookings {
			if err := seedBookings(tx, group.ID, site.ID, now); err != nil {
				return err
			}
		}
		res = SeedResult{GroupID: group.ID, SiteID: site.ID, UserID: user.ID}
		return nil
	})
	return res, err
}

func seedBookings(tx *gorm.DB, groupID, siteID string, now time.Time) error {
	var n int64
	if err := tx.Model(&models.Booking{}).Where("site_id = ?", siteID).Count(&n).Error; err != nil {
		return fmt.Errorf("bookings: %w", err)
	}
	if n > 0 {
		return nil
	}
	loc, err := time.LoadLocation(models.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	at := func(h, m int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
	}
	bookings := []models.Booking{
		{GroupID: groupID, SiteID: siteID, ScheduledAt: at(8, 30), Registration: "BJ16 XYZ", Vehicle: "BMW 520d", Service: "Oil Service + Health Check", Status: models.BookingBooked},
		{GroupID: groupID, SiteID: siteID, ScheduledAt: at(10, 0), Registration: "MF70 ABC", Vehicle: "MINI F56 Cooper S", Service: "Timing chain noise investigation", Status: models.BookingInProgress},
		{GroupID: groupID, SiteID: siteID, ScheduledAt: at(13, 30), Registration: "YK22 TMS", Vehicle: "BMW X5 M50d", Service: "Brake fluid flush", Status: models.BookingCompleted},
	}
	if err := tx.Create(&bookings).Error; err != nil {
		return fmt.Errorf("bookings: %w", err)
	}
	card := models.JobCard{
		GroupID:      groupID,
		SiteID:       siteID,
		BookingID:    &bookings[0].ID,
		Technician:   "Lewis",
		Vehicle:      bookings[0].Vehicle,
		Registration: bookings[0].Registration,
		IntakeSlots:  append([]string{}, models.DefaultIntakeSlots...),
		Status:       models.JobCardOpen,
		Tasks: []models.JobCardTask{
			{Title: "Oil service - BMW 520d", Notes: "Drain oil, replace filter, refill LL-04, reset service computer.", Position: 1},
			{Title: "Brake fluid flush", Notes: "Pressure bleed all four corners, torque check calipers.", Position: 2},
		},
	}
	if err := tx.Create(&card).Error; err != nil {
		return fmt.Errorf("job card: %w", err)
	}
	return nil
}
