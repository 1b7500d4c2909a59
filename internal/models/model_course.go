package models

import "time"

type Course struct {
	ID    string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Slug  string `gorm:"column:slug;type:varchar(128);not null;uniqueIndex" json:"slug"`
	Title string `gorm:"column:title;type:varchar(255)" json:"title"`
	// EnrollmentCount is denormalized and only ever incremented by enrollment creation.
	EnrollmentCount int64     `gorm:"column:enrollment_count;type:bigint;not null;default:0" json:"enrollment_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Course) TableName() string { return "courses" }
