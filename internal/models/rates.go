package models

import (
	"time"

	"gorm.io/gorm"
)

// Names and codes of the rows maintained by the rates flow.
const (
	VATRateName       = "UK VAT"
	LabourServiceCode = "LABOUR_HR"
	LabourServiceName = "Labour (per hour)"
	LabourServiceDesc = "Standard labour rate per hour (ex VAT)."
	LabourMinutes     = 60
)

// TaxRate is a named tax percentage owned by a Group.
type TaxRate struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	GroupID    string    `gorm:"uniqueIndex:idx_tax_rates_group_name;size:36;not null" json:"group_id"`
	Group      *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	Name       string    `gorm:"uniqueIndex:idx_tax_rates_group_name;size:100;not null" json:"name"`
	Percentage float64   `gorm:"type:decimal(5,2);not null" json:"percentage"`
	ValidFrom  time.Time `gorm:"not null" json:"valid_from"`
}

func (r *TaxRate) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

func (r *TaxRate) GetGroupID() string { return r.GroupID }

// ServiceCatalogue is a priced service offered at a Site.
type ServiceCatalogue struct {
	ID                     string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	GroupID                string    `gorm:"uniqueIndex:idx_service_catalogue_key;size:36;not null" json:"group_id"`
	Group                  *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	SiteID                 string    `gorm:"uniqueIndex:idx_service_catalogue_key;size:36;not null" json:"site_id"`
	Site                   *Site     `gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE" json:"-"`
	ServiceCode            string    `gorm:"uniqueIndex:idx_service_catalogue_key;size:50;not null" json:"service_code"`
	Name                   string    `gorm:"size:255;not null" json:"name"`
	Description            string    `gorm:"size:500" json:"description,omitempty"`
	DefaultDurationMinutes int       `gorm:"not null" json:"default_duration_minutes"`
	DefaultLabourRate      float64   `gorm:"type:decimal(10,2);not null" json:"default_labour_rate"`
	DefaultPrice           float64   `gorm:"type:decimal(10,2);not null" json:"default_price"`
	VATRate                float64   `gorm:"type:decimal(5,2);not null" json:"vat_rate"`
	IsActive               bool      `gorm:"not null;default:true" json:"is_active"`
}

func (ServiceCatalogue) TableName() string { return "service_catalogue" }

func (s *ServiceCatalogue) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

func (s *ServiceCatalogue) GetGroupID() string { return s.GroupID }
func (s *ServiceCatalogue) GetSiteID() string  { return s.SiteID }
