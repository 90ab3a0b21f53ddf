package models

import "time"

// VerificationStatus is the moderation state of a VerificationRequest.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// AddressPlaceholder fills address parts the submitter could not provide.
const AddressPlaceholder = "N/A"

// Valid reports whether s is one of the known states.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationApproved || s == VerificationRejected
}

// Address is the structured location attached to a verification request.
type Address struct {
	Province    string `gorm:"type:varchar(128)" json:"province"`
	City        string `gorm:"type:varchar(128)" json:"city"`
	District    string `gorm:"type:varchar(128)" json:"district"`
	Village     string `gorm:"type:varchar(128)" json:"village"`
	FullAddress string `gorm:"type:text" json:"full_address"`
}

// VerificationRequest is a provider's application to become a verified service provider.
// Rows are created pending and never deleted.
type VerificationRequest struct {
	BaseModel

	UserID  string   `gorm:"type:uuid;not null;index" json:"user_id"`
	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`

	FullName       string  `gorm:"type:varchar(255);not null" json:"full_name"`
	WhatsAppNumber string  `gorm:"column:whatsapp_number;type:varchar(32);not null" json:"whatsapp_number"`
	Address        Address `gorm:"embedded;embeddedPrefix:address_" json:"address"`

	IDCardURL string `gorm:"column:id_card_url;type:text;not null" json:"id_card_url"`
	IDCardKey string `gorm:"column:id_card_key;type:text" json:"-"`

	Status     VerificationStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	AdminNotes *string            `gorm:"type:text" json:"admin_notes"`
	ReviewedBy *string            `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time         `json:"reviewed_at,omitempty"`
}

// TableName keeps the table name stable across naming strategies.
func (VerificationRequest) TableName() string {
	return "provider_verifications"
}
