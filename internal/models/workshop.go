package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Booking statuses.
const (
	BookingBooked     = "booked"
	BookingInProgress = "in_progress"
	BookingCompleted  = "completed"
	BookingCancelled  = "cancelled"
)

// Booking is a scheduled workshop slot at a Site.
type Booking struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	GroupID      string    `gorm:"index;size:36;not null" json:"group_id"`
	SiteID       string    `gorm:"index:idx_bookings_site_time;size:36;not null" json:"site_id"`
	Site         *Site     `gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE" json:"-"`
	ScheduledAt  time.Time `gorm:"index:idx_bookings_site_time;not null" json:"scheduled_at"`
	CustomerName string    `gorm:"size:255" json:"customer_name,omitempty"`
	Vehicle      string    `gorm:"size:255;not null" json:"vehicle"`
	Registration string    `gorm:"size:20;not null" json:"registration"`
	Service      string    `gorm:"size:255;not null" json:"service"`
	Status       string    `gorm:"size:20;not null" json:"status"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

func (b *Booking) GetGroupID() string { return b.GroupID }
func (b *Booking) GetSiteID() string  { return b.SiteID }

// DefaultIntakeSlots are the photo slots captured at vehicle intake.
var DefaultIntakeSlots = []string{"front", "left", "rear", "right", "engine_bay", "vin", "mileage"}

// Job card statuses.
const (
	JobCardOpen   = "open"
	JobCardClosed = "closed"
)

// JobCard tracks the work carried out on a vehicle.
type JobCard struct {
	ID           string                      `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
	GroupID      string                      `gorm:"index;size:36;not null" json:"group_id"`
	SiteID       string                      `gorm:"index;size:36;not null" json:"site_id"`
	Site         *Site                       `gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE" json:"-"`
	BookingID    *string                     `gorm:"index;size:36" json:"booking_id,omitempty"`
	Technician   string                      `gorm:"size:255" json:"technician,omitempty"`
	Vehicle      string                      `gorm:"size:255;not null" json:"vehicle"`
	Registration string                      `gorm:"size:20;not null" json:"registration"`
	MileageKm    int                         `json:"mileage_km"`
	IntakeSlots  datatypes.JSONSlice[string] `json:"intake_slots"`
	Status       string                      `gorm:"size:20;not null" json:"status"`
	Tasks        []JobCardTask               `gorm:"constraint:OnDelete:CASCADE" json:"tasks"`
}

func (j *JobCard) BeforeCreate(*gorm.DB) error {
	assignID(&j.ID)
	return nil
}

func (j *JobCard) GetGroupID() string { return j.GroupID }
func (j *JobCard) GetSiteID() string  { return j.SiteID }

// JobCardTask is a checklist item on a job card.
type JobCardTask struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	JobCardID string `gorm:"index;size:36;not null" json:"job_card_id"`
	Title     string `gorm:"size:255;not null" json:"title"`
	Notes     string `gorm:"size:1000" json:"notes,omitempty"`
	Done      bool   `gorm:"not null;default:false" json:"done"`
	Position  int    `gorm:"not null" json:"position"`
}

func (t *JobCardTask) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
