package models

import (
	"time"

	"github.com/fatflowers/funnelhook/pkg/types"
)

// NoUserID is stored in EmailBounce.UserID for failures detected before an
// account exists.
const NoUserID = "00000000-0000-0000-0000-000000000000"

type EmailBounce struct {
	ID            string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID        string `gorm:"column:user_id;type:uuid;not null;uniqueIndex:unique_bounce_user_email,priority:1" json:"user_id"`
	OriginalEmail string `gorm:"column:original_email;type:varchar(320);not null;uniqueIndex:unique_bounce_user_email,priority:2" json:"original_email"`
	// BounceType is "pre_purchase" for deliverability failures found at checkout.
	BounceType    string    `gorm:"column:bounce_type;type:varchar(32);not null" json:"bounce_type"`
	ResultCode    string    `gorm:"column:result_code;type:varchar(64)" json:"result_code"`
	Reason        string    `gorm:"column:reason;type:text" json:"reason"`
	BounceCount   int       `gorm:"column:bounce_count;not null;default:1" json:"bounce_count"`
	LastBouncedAt time.Time `gorm:"column:last_bounced_at;not null" json:"last_bounced_at"`

	SuggestedEmail       *string  `gorm:"column:suggested_email;type:varchar(320)" json:"suggested_email"`
	SuggestionConfidence *float64 `gorm:"column:suggestion_confidence" json:"suggestion_confidence"`
	SuggestionSource     *string  `gorm:"column:suggestion_source;type:varchar(64)" json:"suggestion_source"`

	Status        types.BounceStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	ResolvedEmail *string            `gorm:"column:resolved_email;type:varchar(320)" json:"resolved_email"`
	ResolvedBy    *string            `gorm:"column:resolved_by;type:varchar(128)" json:"resolved_by"`
	ResolvedAt    *time.Time         `gorm:"column:resolved_at" json:"resolved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EmailBounce) TableName() string { return "email_bounces" }
