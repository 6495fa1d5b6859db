package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/metrics"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/policy"
	"github.com/greasedesk/greasedesk/internal/tenant"
	"github.com/greasedesk/greasedesk/validation"
)

// RatesService validates and stores a tenant's VAT, labour rate and
// regional settings. The onboarding wizard and the settings page share it.
type RatesService struct {
	base
	authz Authorizer
}

func NewRatesService(conn *gorm.DB, authz Authorizer, m *metrics.Recorder, log *zap.Logger) *RatesService {
	return &RatesService{base: newBase(conn, m, log), authz: authz}
}

// RatesInput is the rates form. Numbers may be sent as JSON numbers or as
// numeric strings. Empty optional fields leave the stored value unchanged.
type RatesInput struct {
	// SiteID targets a specific site; empty means the caller's site.
	SiteID              string            `json:"siteId"`
	DefaultVATRate      validation.Number `json:"defaultVatRate"`
	DefaultLabourRate   validation.Number `json:"defaultLabourRate"`
	Timezone            string            `json:"timezone"`
	CurrencyCode        string            `json:"currencyCode"`
	PricingDisplayMode  string            `json:"pricingDisplayMode"`
	SupportedCountries  []string          `json:"supportedCountries"`
	SupportedCurrencies []string          `json:"supportedCurrencies"`
}

// Validate normalizes the input and reports every invalid field. It runs
// before any store access.
func (in *RatesInput) Validate() error {
	v := validation.Violations{}
	if validation.NumberField("defaultVatRate", in.DefaultVATRate, v) {
		validation.RangeFloat("defaultVatRate", in.DefaultVATRate.Value, 0, 100, v)
	}
	if validation.NumberField("defaultLabourRate", in.DefaultLabourRate, v) {
		validation.NonNegativeFloat("defaultLabourRate", in.DefaultLabourRate.Value, v)
	}

	in.Timezone = strings.TrimSpace(in.Timezone)
	if in.Timezone != "" {
		if _, err := time.LoadLocation(in.Timezone); err != nil {
			v["timezone"] = "invalid_timezone"
		}
	}
	in.CurrencyCode = strings.ToUpper(strings.TrimSpace(in.CurrencyCode))
	if in.CurrencyCode != "" && !isCurrencyCode(in.CurrencyCode) {
		v["currencyCode"] = "invalid_currency"
	}
	in.PricingDisplayMode = strings.TrimSpace(in.PricingDisplayMode)
	switch in.PricingDisplayMode {
	case "", models.PricingExVAT, models.PricingIncVAT:
	default:
		v["pricingDisplayMode"] = "invalid_choice"
	}
	in.SupportedCountries = cleanList(in.SupportedCountries, false)
	in.SupportedCurrencies = cleanList(in.SupportedCurrencies, true)
	for _, c := range in.SupportedCurrencies {
		if !isCurrencyCode(c) {
			v["supportedCurrencies"] = "invalid_currency"
			break
		}
	}
	return v.Err("Invalid rates.")
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(in []string, upper bool) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if upper {
			s = strings.ToUpper(s)
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// RatesResult echoes the stored values.
type RatesResult struct {
	SiteID     string  `json:"siteId"`
	VATRate    float64 `json:"defaultVatRate"`
	LabourRate float64 `json:"defaultLabourRate"`
}

// Apply stores the rates for the target site. The site must belong to the
// caller's group; this is checked inside the transaction before any write.
// The UK VAT tax rate and the site's LABOUR_HR service are upserted on their
// unique keys, so repeated calls converge on the latest values.
func (s *RatesService) Apply(ctx context.Context, tc tenant.Context, in RatesInput) (*RatesResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if tc.GroupID == "" {
		return nil, apperr.ErrTenantContextMissing
	}
	siteID := strings.TrimSpace(in.SiteID)
	if siteID == "" {
		if err := tc.RequireSite(); err != nil {
			return nil, err
		}
		siteID = tc.SiteID
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceSettings, nil); err != nil {
		return nil, err
	}

	vat := validation.Round2(in.DefaultVATRate.Value)
	labour := validation.Round2(in.DefaultLabourRate.Value)
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var site models.Site
		if err := tx.Where("id = ?", siteID).Take(&site).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrCrossTenant
			}
			return fmt.Errorf("load site: %w", err)
		}
		if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceSettings, &site); err != nil {
			return err
		}

		if fields := regionalFields(in); len(fields) > 0 {
			if err := tx.Model(&site).Updates(fields).Error; err != nil {
				return fmt.Errorf("update site: %w", err)
			}
		}

		rate := models.TaxRate{
			GroupID:    tc.GroupID,
			Name:       models.VATRateName,
			Percentage: vat,
			ValidFrom:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"percentage", "updated_at"}),
		}).Create(&rate).Error; err != nil {
			return fmt.Errorf("upsert tax rate: %w", err)
		}

		labourRow := models.ServiceCatalogue{
			GroupID:                tc.GroupID,
			SiteID:                 site.ID,
			ServiceCode:            models.LabourServiceCode,
			Name:                   models.LabourServiceName,
			Description:            models.LabourServiceDesc,
			DefaultDurationMinutes: models.LabourMinutes,
			DefaultLabourRate:      labour,
			DefaultPrice:           labour,
			VATRate:                vat,
			IsActive:               true,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}, {Name: "site_id"}, {Name: "service_code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"default_labour_rate", "default_price", "vat_rate", "is_active", "updated_at",
			}),
		}).Create(&labourRow).Error; err != nil {
			return fmt.Errorf("upsert labour service: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(StepRates, db.TranslateError(err, nil))
	}
	s.metrics.Step(StepRates, metrics.OutcomeUpdated)
	logFromBase(s.log, tc).Info("rates saved", zap.String("site_id", siteID),
		zap.Float64("vat", vat), zap.Float64("labour", labour))
	return &RatesResult{SiteID: siteID, VATRate: vat, LabourRate: labour}, nil
}

func regionalFields(in RatesInput) map[string]any {
	fields := map[string]any{}
	if in.Timezone != "" {
		fields["timezone"] = in.Timezone
	}
	if in.CurrencyCode != "" {
		fields["currency_code"] = in.CurrencyCode
	}
	if in.PricingDisplayMode != "" {
		fields["pricing_display_mode"] = in.PricingDisplayMode
	}
	if len(in.SupportedCountries) > 0 {
		fields["supported_countries"] = datatypes.JSONSlice[string](in.SupportedCountries)
	}
	if len(in.SupportedCurrencies) > 0 {
		fields["supported_currencies"] = datatypes.JSONSlice[string](in.SupportedCurrencies)
	}
	return fields
}

// Settings is the current configuration of the caller's group and site.
type Settings struct {
	Group      *models.Group            `json:"group"`
	Site       *models.Site             `json:"site"`
	VATRate    *float64                 `json:"defaultVatRate"`
	Labour     *models.ServiceCatalogue `json:"labourService,omitempty"`
	LabourShow *Price                   `json:"labourDisplayPrice,omitempty"`
}

// Settings loads the group, site and rate rows of the caller's tenant.
func (s *RatesService) Settings(ctx context.Context, tc tenant.Context) (*Settings, error) {
	if err := tc.RequireSite(); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionView, policy.ResourceSettings, nil); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx)
	out := &Settings{Group: &models.Group{}, Site: &models.Site{}}
	if err := q.Where("id = ?", tc.GroupID).Take(out.Group).Error; err != nil {
		return nil, db.TranslateError(err, nil)
	}
	if err := q.Where("id = ?", tc.SiteID).Take(out.Site).Error; err != nil {
		return nil, db.TranslateError(err, nil)
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionView, policy.ResourceSettings, out.Site); err != nil {
		return nil, err
	}

	var rate models.TaxRate
	err := q.Where("group_id = ? AND name = ?", tc.GroupID, models.VATRateName).Take(&rate).Error
	switch {
	case err == nil:
		out.VATRate = &rate.Percentage
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Internal(fmt.Errorf("load tax rate: %w", err))
	}

	var labour models.ServiceCatalogue
	err = q.Where("group_id = ? AND site_id = ? AND service_code = ?", tc.GroupID, tc.SiteID, models.LabourServiceCode).
		Take(&labour).Error
	switch {
	case err == nil:
		out.Labour = &labour
		p := NewPricing().Quote(labour.DefaultPrice, labour.VATRate, out.Site.PricingDisplayMode)
		out.LabourShow = &p
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Internal(fmt.Errorf("load labour service: %w", err))
	}
	return out, nil
}
