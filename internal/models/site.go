package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pricing display modes.
const (
	PricingExVAT  = "ex_vat"
	PricingIncVAT = "inc_vat"
)

// Regional defaults applied to newly created sites.
const (
	DefaultTimezone = "Europe/London"
	DefaultCurrency = "GBP"
	DefaultLocale   = "en-GB"
)

var (
	DefaultSupportedCountries  = []string{"United Kingdom"}
	DefaultSupportedCurrencies = []string{"GBP", "EUR", "USD"}
)

// Site is a physical workshop under a Group.
type Site struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	GroupID   string    `gorm:"index;size:36;not null" json:"group_id"`
	Group     *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	// DefaultForGroupID is set on the site created by the onboarding flow.
	// Its unique index keeps that flow to one site per group under concurrent
	// requests. Sites added later leave it nil.
	DefaultForGroupID   *string                     `gorm:"uniqueIndex;size:36" json:"-"`
	SiteName            string                      `gorm:"size:255;not null" json:"site_name"`
	Timezone            string                      `gorm:"size:64;not null" json:"timezone"`
	CurrencyCode        string                      `gorm:"size:3;not null" json:"currency_code"`
	Locale              string                      `gorm:"size:16;not null" json:"locale"`
	PricingDisplayMode  string                      `gorm:"size:10;not null" json:"pricing_display_mode"`
	SupportedCountries  datatypes.JSONSlice[string] `json:"supported_countries"`
	SupportedCurrencies datatypes.JSONSlice[string] `json:"supported_currencies"`
	Address             string                      `gorm:"size:500" json:"address,omitempty"`
}

func (s *Site) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

func (s *Site) GetGroupID() string { return s.GroupID }

// NewDefaultSite returns a site with UK regional defaults.
func NewDefaultSite(groupID, name, address string) *Site {
	return &Site{
		GroupID:             groupID,
		DefaultForGroupID:   &groupID,
		SiteName:            name,
		Timezone:            DefaultTimezone,
		CurrencyCode:        DefaultCurrency,
		Locale:              DefaultLocale,
		PricingDisplayMode:  PricingExVAT,
		SupportedCountries:  append(datatypes.JSONSlice[string]{}, DefaultSupportedCountries...),
		SupportedCurrencies: append(datatypes.JSONSlice[string]{}, DefaultSupportedCurrencies...),
		Address:             address,
	}
}
