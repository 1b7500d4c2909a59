package models

import "time"

// UserTag is both a feature flag and an idempotency fence for one-shot side effects.
type UserTag struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string    `gorm:"column:user_id;type:uuid;not null;uniqueIndex:unique_user_tag,priority:1" json:"user_id"`
	Tag       string    `gorm:"column:tag;type:varchar(128);not null;uniqueIndex:unique_user_tag,priority:2" json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserTag) TableName() string { return "user_tags" }
