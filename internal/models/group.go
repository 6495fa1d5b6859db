package models

import (
	"time"

	"gorm.io/gorm"
)

// Group is a tenant: the billing and ownership boundary for all garage data.
type Group struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	GroupName      string     `gorm:"size:255;not null" json:"group_name"`
	BillingEmail   string     `gorm:"uniqueIndex;size:255;not null" json:"billing_email"`
	TradingName    string     `gorm:"size:255" json:"trading_name,omitempty"`
	VATNumber      string     `gorm:"size:32" json:"vat_number,omitempty"`
	CompanyNumber  string     `gorm:"size:32" json:"company_number,omitempty"`
	Address        string     `gorm:"size:500" json:"address,omitempty"`
	IsFranchiseGrp bool       `gorm:"not null;default:false" json:"is_franchise_grp"`
	OnboardedAt    *time.Time `json:"onboarded_at,omitempty"`
}

func (g *Group) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}

// GetGroupID implements GroupOwned.
func (g *Group) GetGroupID() string { return g.ID }

// Billing statuses.
const (
	BillingGrace     = "grace"
	BillingOK        = "ok"
	BillingPastDue   = "past_due"
	BillingCancelled = "cancelled"
)

// StarterPlan is assigned when a trial starts.
const StarterPlan = "Core Basic"

// GroupBilling holds trial/subscription state, one row per Group.
type GroupBilling struct {
	GroupID         string     `gorm:"primaryKey;size:36" json:"group_id"`
	Group           *Group     `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PlanName        string     `gorm:"size:100;not null" json:"plan_name"`
	Status          string     `gorm:"size:20;not null" json:"status"`
	RetentionMonths int        `gorm:"not null" json:"retention_months"`
	IncludedSites   int        `gorm:"not null" json:"included_sites"`
	ActiveSitesCnt  int        `gorm:"not null" json:"active_sites_cnt"`
	TrialEndsAt     *time.Time `json:"trial_ends_at,omitempty"`
}

func (GroupBilling) TableName() string { return "group_billing" }

func (b *GroupBilling) GetGroupID() string { return b.GroupID }
