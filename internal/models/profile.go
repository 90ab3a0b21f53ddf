package models

import "time"

// Profile roles.
const (
	RoleUser     = "user"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// Profile is the marketplace user record. IsVerified may only be true while an
// approved VerificationRequest exists for the same user.
type Profile struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	Password string `gorm:"not null" json:"-"`
	Phone    string `gorm:"type:varchar(32)" json:"phone,omitempty"`

	Role       string  `gorm:"type:varchar(16);not null;default:'user';index" json:"role"`
	IsVerified bool    `gorm:"not null;default:false" json:"is_verified"`
	Balance    float64 `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// ValidRole reports whether role is a known profile role.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleProvider, RoleAdmin:
		return true
	}
	return false
}
