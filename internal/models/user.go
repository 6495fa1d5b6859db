package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Roles, in decreasing order of privilege.
const (
	RoleOwner    = "OWNER"
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleMechanic = "MECHANIC"
)

// InvitePendingHash is stored as the password hash of invited users until
// they accept. It is not a valid bcrypt digest, so it can never verify.
const InvitePendingHash = "INVITE_PENDING"

// User is an authenticated principal belonging to at most one Group and Site.
type User struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Email         string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name          string     `gorm:"size:255" json:"name,omitempty"`
	PasswordHash  string     `gorm:"size:255;not null" json:"-"`
	Role          string     `gorm:"size:20;not null" json:"role"`
	GroupID       *string    `gorm:"index;size:36" json:"group_id,omitempty"`
	Group         *Group     `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"-"`
	SiteID        *string    `gorm:"index;size:36" json:"site_id,omitempty"`
	Site          *Site      `gorm:"foreignKey:SiteID;constraint:OnDelete:SET NULL" json:"-"`
	IsActive      bool       `gorm:"not null;default:false" json:"is_active"`
	EmailVerified *time.Time `json:"email_verified,omitempty"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// Pending reports whether the user is an invite that has not been accepted.
func (u *User) Pending() bool { return u.PasswordHash == InvitePendingHash }

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidRole reports whether r is a known role label.
func ValidRole(r string) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff, RoleMechanic:
		return true
	}
	return false
}

var roleRank = map[string]int{RoleOwner: 4, RoleAdmin: 3, RoleStaff: 2, RoleMechanic: 1}

// Outranks reports whether role a is strictly more privileged than b.
// Unknown roles rank lowest.
func Outranks(a, b string) bool { return roleRank[a] > roleRank[b] }

// StringValue dereferences an optional id.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
