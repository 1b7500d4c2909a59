package models

import "time"

// User is the learner account created or resolved from a purchase.
type User struct {
	ID           string  `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email        string  `gorm:"column:email;type:varchar(320);not null;uniqueIndex" json:"email"`
	FirstName    *string `gorm:"column:first_name;type:varchar(128)" json:"first_name"`
	LastName     *string `gorm:"column:last_name;type:varchar(128)" json:"last_name"`
	Phone        *string `gorm:"column:phone;type:varchar(64)" json:"phone"`
	PasswordHash string  `gorm:"column:password_hash;type:varchar(128);not null" json:"-"`
	Role         string  `gorm:"column:role;type:varchar(32);not null" json:"role"`
	// Source and SourceDetail record lead provenance, e.g. provider and product.
	Source       *string `gorm:"column:source;type:varchar(64)" json:"source"`
	SourceDetail *string `gorm:"column:source_detail;type:varchar(255)" json:"source_detail"`

	// Compliance snapshot. Write-once: backfilled when empty, never overwritten.
	RegistrationIP         *string    `gorm:"column:registration_ip;type:varchar(64)" json:"registration_ip"`
	RegistrationUserAgent  *string    `gorm:"column:registration_user_agent;type:text" json:"registration_user_agent"`
	TermsAcceptedAt        *time.Time `gorm:"column:terms_accepted_at" json:"terms_accepted_at"`
	TermsVersion           *string    `gorm:"column:terms_version;type:varchar(32)" json:"terms_version"`
	RefundPolicyAcceptedAt *time.Time `gorm:"column:refund_policy_accepted_at" json:"refund_policy_accepted_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// FirstNameOrEmpty is the greeting name used by emails.
func (u *User) FirstNameOrEmpty() string {
	if u == nil || u.FirstName == nil {
		return ""
	}
	return *u.FirstName
}
