package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

type Options struct {
	TransactionID string
	// SupersedesPreview auto-completes the preview lesson on new enrollments.
	SupersedesPreview bool
}

// Result lists what happened to each resolved slug.
type Result struct {
	Created  []string `json:"created"`
	Existing []string `json:"existing"`
	// Skipped slugs have no course row.
	Skipped  []string `json:"skipped"`
	Upgraded int64    `json:"upgraded"`
}

// Enrolled is every slug the user now holds an enrollment for.
func (r *Result) Enrolled() []string {
	return append(append([]string{}, r.Created...), r.Existing...)
}

type Orchestrator struct {
	mapper *catalog.Mapper
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewOrchestrator(mapper *catalog.Mapper, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{mapper: mapper, log: log, now: time.Now}
}

// Enroll creates missing enrollments for slugs. It must run inside the
// caller's transaction; any error other than "already enrolled" aborts it.
func (o *Orchestrator) Enroll(ctx context.Context, tx *gorm.DB, user *models.User, slugs []string, opts Options) (*Result, error) {
	log := logctx.FromCtx(ctx, o.log)
	res := &Result{}

	for _, slug := range slugs {
		course, err := findCourse(ctx, tx, slug)
		if err != nil {
			return nil, err
		}
		if course == nil {
			log.Warnf("course not found for slug, skipping: slug=%s user_id=%s", slug, user.ID)
			res.Skipped = append(res.Skipped, slug)
			continue
		}

		created, err := o.enrollOne(ctx, tx, user, course, opts)
		if err != nil {
			return nil, err
		}
		if created {
			res.Created = append(res.Created, slug)
			log.Infow("enrollment_created", "user_id", user.ID, "course", slug, "transaction_id", opts.TransactionID)
		} else {
			res.Existing = append(res.Existing, slug)
		}

		if o.mapper != nil && o.mapper.IsFlagship(slug) {
			n, err := o.completePreviews(ctx, tx, user.ID, slugs)
			if err != nil {
				return nil, err
			}
			res.Upgraded += n
		}
	}
	return res, nil
}

func (o *Orchestrator) enrollOne(ctx context.Context, tx *gorm.DB, user *models.User, course *models.Course, opts Options) (bool, error) {
	var existing models.Enrollment
	err := tx.WithContext(ctx).Where("user_id = ? AND course_id = ?", user.ID, course.ID).First(&existing).Error
	if err == nil {
		// cancelled enrollments stay cancelled; repurchase does not reactivate
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to load enrollment: %w", err)
	}

	e := &models.Enrollment{
		ID:       tool.GenerateUUIDV7(),
		UserID:   user.ID,
		CourseID: course.ID,
		Status:   types.EnrollmentStatusActive,
	}
	if opts.TransactionID != "" {
		e.SourceTransactionID = lo.ToPtr(opts.TransactionID)
	}
	r := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}}, DoNothing: true}).
		Create(e)
	if r.Error != nil {
		return false, fmt.Errorf("failed to create enrollment: %w", r.Error)
	}
	if r.RowsAffected == 0 {
		return false, nil
	}

	if err := tx.WithContext(ctx).Model(&models.Course{}).Where("id = ?", course.ID).
		UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + 1")).Error; err != nil {
		return false, fmt.Errorf("failed to bump enrollment count: %w", err)
	}

	if opts.SupersedesPreview && o.mapper != nil && o.mapper.PreviewLesson() != "" {
		lp := &models.LessonProgress{
			ID:           tool.GenerateUUIDV7(),
			EnrollmentID: e.ID,
			LessonKey:    o.mapper.PreviewLesson(),
			CompletedAt:  o.now(),
		}
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(lp).Error; err != nil {
			return false, fmt.Errorf("failed to mark preview lesson complete: %w", err)
		}
	}
	return true, nil
}

// completePreviews moves the user's ACTIVE preview-tier enrollments to
// COMPLETED. Preview courses bought in the same purchase are left alone.
func (o *Orchestrator) completePreviews(ctx context.Context, tx *gorm.DB, userID string, purchased []string) (int64, error) {
	previews := lo.Without(o.mapper.PreviewCourses(), purchased...)
	if len(previews) == 0 {
		return 0, nil
	}
	var courseIDs []string
	if err := tx.WithContext(ctx).Model(&models.Course{}).Where("slug IN ?", previews).Pluck("id", &courseIDs).Error; err != nil {
		return 0, fmt.Errorf("failed to load preview courses: %w", err)
	}
	if len(courseIDs) == 0 {
		return 0, nil
	}
	now := o.now()
	r := tx.WithContext(ctx).Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id IN ? AND status = ?", userID, courseIDs, types.EnrollmentStatusActive).
		Updates(map[string]any{
			"status":       types.EnrollmentStatusCompleted,
			"completed_at": now,
			"progress":     100,
		})
	if r.Error != nil {
		return 0, fmt.Errorf("failed to complete preview enrollments: %w", r.Error)
	}
	if r.RowsAffected > 0 {
		logctx.FromCtx(ctx, o.log).Infow("preview_enrollments_completed", "user_id", userID, "count", r.RowsAffected)
	}
	return r.RowsAffected, nil
}

// CancelAll cancels every ACTIVE enrollment of the user and returns how many
// changed. COMPLETED and CANCELLED rows are untouched.
func (o *Orchestrator) CancelAll(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	r := tx.WithContext(ctx).Model(&models.Enrollment{}).
		Where("user_id = ? AND status = ?", userID, types.EnrollmentStatusActive).
		Updates(map[string]any{
			"status":       types.EnrollmentStatusCancelled,
			"cancelled_at": o.now(),
		})
	if r.Error != nil {
		return 0, fmt.Errorf("failed to cancel enrollments: %w", r.Error)
	}
	logctx.FromCtx(ctx, o.log).Infow("enrollments_cancelled", "user_id", userID, "count", r.RowsAffected)
	return r.RowsAffected, nil
}

// ListByUser returns the user's enrollments with their course preloaded.
func (o *Orchestrator) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]*models.Enrollment, error) {
	var out []*models.Enrollment
	if err := db.WithContext(ctx).Preload("Course").Where("user_id = ?", userID).Order("created_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return out, nil
}

func findCourse(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error) {
	var c models.Course
	err := tx.WithContext(ctx).Where("slug = ?", slug).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course %s: %w", slug, err)
	}
	return &c, nil
}
