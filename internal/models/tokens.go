package models

import (
	"time"

	"gorm.io/gorm"
)

// VerificationToken is a single-use email verification secret.
type VerificationToken struct {
	Token      string    `gorm:"primaryKey;size:128" json:"-"`
	Identifier string    `gorm:"index;size:255;not null" json:"identifier"`
	Expires    time.Time `gorm:"not null" json:"expires"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *VerificationToken) Expired(now time.Time) bool { return now.After(t.Expires) }

// Invite statuses.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
)

// Invite records an outstanding invitation. The User row stays authoritative
// for access; the invite only carries the acceptance token.
type Invite struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	GroupID    string    `gorm:"uniqueIndex:idx_invites_group_email;size:36;not null" json:"group_id"`
	Group      *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	Email      string    `gorm:"uniqueIndex:idx_invites_group_email;size:255;not null" json:"email"`
	SiteID     *string   `gorm:"size:36" json:"site_id,omitempty"`
	Role       string    `gorm:"size:20;not null" json:"role"`
	Token      string    `gorm:"uniqueIndex;size:128;not null" json:"-"`
	InviteLink string    `gorm:"size:500;not null" json:"invite_link"`
	Status     string    `gorm:"size:20;not null" json:"status"`
	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
}

func (i *Invite) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func (i *Invite) GetGroupID() string { return i.GroupID }
