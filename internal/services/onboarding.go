package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
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

// Onboarding states, in order.
const (
	StateRegistered      = "Registered"
	StateGroupConfigured = "GroupConfigured"
	StateSiteCreated     = "SiteCreated"
	StateRatesConfigured = "RatesConfigured"
	StateTeamInvited     = "TeamInvited"
	StateComplete        = "Complete"
)

// Redirect targets returned to the onboarding client.
const (
	RatesSettingsURL = "/onboarding/rates-settings"
	DashboardURL     = "/admin/dashboard"
)

// OnboardingService drives the guided setup of a tenant. Every step can be
// replayed: repeated calls update the rows created by the first one.
type OnboardingService struct {
	base
	authz Authorizer
	opts  Options
}

func NewOnboardingService(conn *gorm.DB, authz Authorizer, opts Options, m *metrics.Recorder, log *zap.Logger) *OnboardingService {
	return &OnboardingService{base: newBase(conn, m, log), authz: authz, opts: opts.withDefaults()}
}

// TrialResult reports the billing row and whether this call created it.
type TrialResult struct {
	Billing *models.GroupBilling
	Created bool
}

// StartTrial creates the group's billing row on the starter plan. An
// existing row is returned untouched.
func (s *OnboardingService) StartTrial(ctx context.Context, tc tenant.Context) (*TrialResult, error) {
	if err := s.authz.Authorize(ctx, tc, gate.ActionCreate, policy.ResourceOnboarding, nil); err != nil {
		return nil, err
	}
	var res TrialResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.GroupBilling
		err := tx.Where("group_id = ?", tc.GroupID).Take(&existing).Error
		if err == nil {
			res.Billing = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load billing: %w", err)
		}

		trialEnds := s.now().AddDate(0, 0, s.opts.TrialDays)
		billing := models.GroupBilling{
			GroupID:         tc.GroupID,
			PlanName:        models.StarterPlan,
			Status:          models.BillingGrace,
			RetentionMonths: 3,
			IncludedSites:   1,
			ActiveSitesCnt:  1,
			TrialEndsAt:     &trialEnds,
		}
		ins := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "group_id"}}, DoNothing: true}).Create(&billing)
		if ins.Error != nil {
			return fmt.Errorf("create billing: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			// Lost a race with a concurrent start; report the winner's row.
			if err := tx.Where("group_id = ?", tc.GroupID).Take(&existing).Error; err != nil {
				return fmt.Errorf("reload billing: %w", err)
			}
			res.Billing = &existing
			return nil
		}
		res.Billing, res.Created = &billing, true
		return nil
	})
	if err != nil {
		return nil, s.fail(StepStartTrial, db.TranslateError(err, nil))
	}
	if res.Billing == nil {
		return nil, s.fail(StepStartTrial, apperr.Internal(errors.New("billing row missing after start")))
	}
	if res.Created {
		s.metrics.Step(StepStartTrial, metrics.OutcomeCreated)
	} else {
		s.metrics.Step(StepStartTrial, metrics.OutcomeNoop)
	}
	return &res, nil
}

// SetupInput is the group and site form of the onboarding wizard.
type SetupInput struct {
	GroupName     string `json:"groupName" validate:"required,max=255"`
	SiteName      string `json:"siteName" validate:"required,max=255"`
	AddressLine1  string `json:"addressLine1" validate:"max=255"`
	City          string `json:"city" validate:"max=100"`
	Postcode      string `json:"postcode" validate:"max=16"`
	TradingName   string `json:"tradingName" validate:"max=255"`
	VATNumber     string `json:"vatNumber" validate:"max=32"`
	CompanyNumber string `json:"companyNumber" validate:"max=32"`
}

func (in *SetupInput) normalize() {
	in.GroupName = strings.TrimSpace(in.GroupName)
	in.SiteName = strings.TrimSpace(in.SiteName)
	in.AddressLine1 = strings.TrimSpace(in.AddressLine1)
	in.City = strings.TrimSpace(in.City)
	in.Postcode = strings.ToUpper(strings.TrimSpace(in.Postcode))
	in.TradingName = strings.TrimSpace(in.TradingName)
	in.VATNumber = strings.ToUpper(strings.TrimSpace(in.VATNumber))
	in.CompanyNumber = strings.ToUpper(strings.TrimSpace(in.CompanyNumber))
}

// SetupResult identifies the configured group and site.
type SetupResult struct {
	GroupID     string `json:"groupId"`
	SiteID      string `json:"siteId"`
	RedirectURL string `json:"redirectUrl"`
	// SiteCreated is false when an existing site was updated.
	SiteCreated bool `json:"-"`
}

// Setup updates the group's display fields and ensures it has exactly one
// default site linked to the caller. The site is resolved in order: the
// caller's linked site, any site of the group, or a new default site.
func (s *OnboardingService) Setup(ctx context.Context, tc tenant.Context, in SetupInput) (*SetupResult, error) {
	in.normalize()
	v := validation.Violations{}
	validation.Struct(in, v)
	if err := v.Err(""); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceOnboarding, nil); err != nil {
		return nil, err
	}

	address := joinAddress(in.AddressLine1, in.City, in.Postcode)
	res := SetupResult{GroupID: tc.GroupID, RedirectURL: RatesSettingsURL}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("id = ?", tc.GroupID).Take(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrTenantContextMissing
			}
			return fmt.Errorf("load group: %w", err)
		}
		if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceOnboarding, &group); err != nil {
			return err
		}
		groupFields := map[string]any{"group_name": in.GroupName}
		if address != "" {
			groupFields["address"] = address
		}
		if in.TradingName != "" {
			groupFields["trading_name"] = in.TradingName
		}
		if in.VATNumber != "" {
			groupFields["vat_number"] = in.VATNumber
		}
		if in.CompanyNumber != "" {
			groupFields["company_number"] = in.CompanyNumber
		}
		if err := tx.Model(&group).Updates(groupFields).Error; err != nil {
			return fmt.Errorf("update group: %w", err)
		}

		var user models.User
		if err := tx.Where("id = ?", tc.UserID).Take(&user).Error; err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		site, created, err := s.resolveSite(ctx, tx, tc, &user, in.SiteName, address)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("site_id", site.ID).Error; err != nil {
			return fmt.Errorf("link site: %w", err)
		}
		res.SiteID, res.SiteCreated = site.ID, created
		return nil
	})
	if err != nil {
		return nil, s.fail(StepSetup, db.TranslateError(err, nil))
	}
	if res.SiteCreated {
		s.metrics.Step(StepSetup, metrics.OutcomeCreated)
	} else {
		s.metrics.Step(StepSetup, metrics.OutcomeUpdated)
	}
	logFromBase(s.log, tc).Info("onboarding setup saved",
		zap.String("site_id", res.SiteID), zap.Bool("site_created", res.SiteCreated))
	return &res, nil
}

// resolveSite implements the three-way site branch inside the setup
// transaction and applies the submitted name and address to the result.
func (s *OnboardingService) resolveSite(ctx context.Context, tx *gorm.DB, tc tenant.Context, user *models.User, name, address string) (*models.Site, bool, error) {
	fields := map[string]any{"site_name": name}
	if address != "" {
		fields["address"] = address
	}

	var site models.Site
	if user.SiteID != nil && *user.SiteID != "" {
		err := tx.Where("id = ?", *user.SiteID).Take(&site).Error
		switch {
		case err == nil:
			if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceSite, &site); err != nil {
				return nil, false, err
			}
			return s.updateSite(tx, &site, fields)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, fmt.Errorf("load linked site: %w", err)
		}
	}

	err := tx.Where("group_id = ?", tc.GroupID).Order("created_at ASC, id ASC").First(&site).Error
	if err == nil {
		return s.updateSite(tx, &site, fields)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find group site: %w", err)
	}

	candidate := models.NewDefaultSite(tc.GroupID, name, address)
	ins := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "default_for_group_id"}},
		DoNothing: true,
	}).Create(candidate)
	if ins.Error != nil {
		return nil, false, fmt.Errorf("create site: %w", ins.Error)
	}
	if ins.RowsAffected == 1 {
		return candidate, true, nil
	}
	// A concurrent setup created the default site first; adopt it.
	if err := tx.Where("default_for_group_id = ?", tc.GroupID).Take(&site).Error; err != nil {
		return nil, false, fmt.Errorf("reload default site: %w", err)
	}
	return s.updateSite(tx, &site, fields)
}

func (s *OnboardingService) updateSite(tx *gorm.DB, site *models.Site, fields map[string]any) (*models.Site, bool, error) {
	if err := tx.Model(site).Updates(fields).Error; err != nil {
		return nil, false, fmt.Errorf("update site: %w", err)
	}
	return site, false, nil
}

// BillingSummary is the billing part of the status response.
type BillingSummary struct {
	Status      string     `json:"status"`
	PlanName    string     `json:"planName"`
	TrialEndsAt *time.Time `json:"trialEndsAt,omitempty"`
}

// Status describes how far a tenant has progressed.
type Status struct {
	State       string          `json:"state"`
	GroupID     string          `json:"groupId"`
	SiteID      string          `json:"siteId,omitempty"`
	Billing     *BillingSummary `json:"billing"`
	OnboardedAt *time.Time      `json:"onboardedAt,omitempty"`
}

// Status derives the onboarding state from the stored rows.
func (s *OnboardingService) Status(ctx context.Context, tc tenant.Context) (*Status, error) {
	if err := s.authz.Authorize(ctx, tc, gate.ActionView, policy.ResourceOnboarding, nil); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx)
	var group models.Group
	if err := q.Where("id = ?", tc.GroupID).Take(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrTenantContextMissing
		}
		return nil, apperr.Internal(fmt.Errorf("load group: %w", err))
	}
	st := &Status{GroupID: group.ID, SiteID: tc.SiteID, OnboardedAt: group.OnboardedAt}

	var billing models.GroupBilling
	err := q.Where("group_id = ?", group.ID).Take(&billing).Error
	switch {
	case err == nil:
		st.Billing = &BillingSummary{Status: billing.Status, PlanName: billing.PlanName, TrialEndsAt: billing.TrialEndsAt}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Internal(fmt.Errorf("load billing: %w", err))
	}

	state, err := s.state(q, &group, tc.SiteID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	st.State = state
	return st, nil
}

func (s *OnboardingService) state(q *gorm.DB, group *models.Group, siteID string) (string, error) {
	if group.OnboardedAt != nil {
		return StateComplete, nil
	}
	if siteID == "" {
		if group.Address != "" {
			return StateGroupConfigured, nil
		}
		return StateRegistered, nil
	}
	rates, err := ratesConfigured(q, group.ID, siteID)
	if err != nil {
		return "", err
	}
	if !rates {
		return StateSiteCreated, nil
	}
	var invites int64
	if err := q.Model(&models.Invite{}).Where("group_id = ?", group.ID).Count(&invites).Error; err != nil {
		return "", fmt.Errorf("count invites: %w", err)
	}
	if invites > 0 {
		return StateTeamInvited, nil
	}
	return StateRatesConfigured, nil
}

func ratesConfigured(q *gorm.DB, groupID, siteID string) (bool, error) {
	var vat, labour int64
	if err := q.Model(&models.TaxRate{}).Where("group_id = ? AND name = ?", groupID, models.VATRateName).Count(&vat).Error; err != nil {
		return false, fmt.Errorf("count tax rates: %w", err)
	}
	if err := q.Model(&models.ServiceCatalogue{}).
		Where("group_id = ? AND site_id = ? AND service_code = ?", groupID, siteID, models.LabourServiceCode).
		Count(&labour).Error; err != nil {
		return false, fmt.Errorf("count labour service: %w", err)
	}
	return vat > 0 && labour > 0, nil
}

// CompleteResult reports when the tenant finished onboarding.
type CompleteResult struct {
	OnboardedAt time.Time `json:"onboardedAt"`
	RedirectURL string    `json:"redirectUrl"`
	// Changed is false when onboarding was already complete.
	Changed bool `json:"-"`
}

// Complete marks the tenant as onboarded once rates exist. Later calls keep
// the original timestamp.
func (s *OnboardingService) Complete(ctx context.Context, tc tenant.Context) (*CompleteResult, error) {
	if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceOnboarding, nil); err != nil {
		return nil, err
	}
	if err := tc.RequireSite(); err != nil {
		return nil, err
	}
	res := CompleteResult{RedirectURL: DashboardURL}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := ratesConfigured(tx, tc.GroupID, tc.SiteID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrOnboardingIncomplete
		}
		now := s.now()
		upd := tx.Model(&models.Group{}).Where("id = ? AND onboarded_at IS NULL", tc.GroupID).Update("onboarded_at", now)
		if upd.Error != nil {
			return fmt.Errorf("mark onboarded: %w", upd.Error)
		}
		if upd.RowsAffected == 1 {
			res.OnboardedAt, res.Changed = now, true
			return nil
		}
		var group models.Group
		if err := tx.Where("id = ?", tc.GroupID).Take(&group).Error; err != nil {
			return fmt.Errorf("load group: %w", err)
		}
		if group.OnboardedAt != nil {
			res.OnboardedAt = *group.OnboardedAt
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(StepComplete, db.TranslateError(err, nil))
	}
	if res.Changed {
		s.metrics.Step(StepComplete, metrics.OutcomeUpdated)
	} else {
		s.metrics.Step(StepComplete, metrics.OutcomeNoop)
	}
	return &res, nil
}

func logFromBase(l *zap.Logger, tc tenant.Context) *zap.Logger {
	return l.With(zap.String("user_id", tc.UserID), zap.String("group_id", tc.GroupID))
}
