package models

import (
	"time"

	"github.com/fatflowers/funnelhook/pkg/types"
)

// Enrollment grants a user access to a course. At most one row per (user, course).
type Enrollment struct {
	ID       string                 `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID   string                 `gorm:"column:user_id;type:uuid;not null;uniqueIndex:unique_enrollment_user_course,priority:1" json:"user_id"`
	CourseID string                 `gorm:"column:course_id;type:uuid;not null;uniqueIndex:unique_enrollment_user_course,priority:2;index" json:"course_id"`
	Status   types.EnrollmentStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	// Progress is the completion percentage, 0..100.
	Progress            int        `gorm:"column:progress;not null;default:0" json:"progress"`
	SourceTransactionID *string    `gorm:"column:source_transaction_id;type:varchar(128)" json:"source_transaction_id"`
	CompletedAt         *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	Course *Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

func (Enrollment) TableName() string { return "enrollments" }

// LessonProgress records a completed lesson inside an enrollment.
type LessonProgress struct {
	ID           string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EnrollmentID string    `gorm:"column:enrollment_id;type:uuid;not null;uniqueIndex:unique_lesson_progress,priority:1" json:"enrollment_id"`
	LessonKey    string    `gorm:"column:lesson_key;type:varchar(128);not null;uniqueIndex:unique_lesson_progress,priority:2" json:"lesson_key"`
	CompletedAt  time.Time `gorm:"column:completed_at;not null" json:"completed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }
