package bounce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/types"
)

var (
	ErrInvalidTransition = errors.New("invalid bounce status transition")
	ErrNotFound          = errors.New("email bounce not found")
	// ErrEmailRequired is returned when a fixed status carries no corrected email.
	ErrEmailRequired = errors.New("corrected email required")
)

var ScanFields = []string{"id", "user_id", "original_email", "bounce_type", "result_code", "status", "suggested_email", "resolved_email", "bounce_count", "last_bounced_at", "created_at"}

var terminal = []types.BounceStatus{
	types.BounceStatusAutoFixed,
	types.BounceStatusManualFixed,
	types.BounceStatusIgnored,
}

type ResolveRequest struct {
	ID             string             `json:"id" validate:"required"`
	Status         types.BounceStatus `json:"status" validate:"required"`
	CorrectedEmail string             `json:"corrected_email" validate:"omitempty,email"`
	Operator       string             `json:"operator"`
}

// ResolveResult reports the bounce after the transition and whether an
// account email was rewritten.
type ResolveResult struct {
	Bounce      *models.EmailBounce `json:"bounce"`
	UserUpdated bool                `json:"user_updated"`
	UserID      string              `json:"user_id,omitempty"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	validate *validator.Validate
	now      func() time.Time
}

func New(gdb *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: gdb, log: log, validate: validator.New(), now: time.Now}
}

func (s *Service) List(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[models.EmailBounce], error) {
	return db.Scan[models.EmailBounce](ctx, s.db, req, ScanFields...)
}

// Resolve closes an open bounce. Fixed statuses need a corrected email; when
// an account still uses the original address and nobody owns the corrected
// one, the account is moved to the corrected address in the same transaction.
func (s *Service) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResult, error) {
	req.CorrectedEmail = strings.ToLower(strings.TrimSpace(req.CorrectedEmail))
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if !lo.Contains(terminal, req.Status) {
		return nil, fmt.Errorf("target %q: %w", req.Status, ErrInvalidTransition)
	}
	corrected := req.CorrectedEmail
	if req.Status != types.BounceStatusIgnored && corrected == "" {
		return nil, ErrEmailRequired
	}

	log := logctx.FromCtx(ctx, s.log)
	res := &ResolveResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.EmailBounce
		if err := tx.Where("id = ?", req.ID).First(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s: %w", req.ID, ErrNotFound)
			}
			return fmt.Errorf("failed to load bounce: %w", err)
		}
		if !b.Status.Open() {
			return fmt.Errorf("%s -> %s: %w", b.Status, req.Status, ErrInvalidTransition)
		}

		now := s.now()
		updates := map[string]any{
			"status":      req.Status,
			"resolved_at": now,
			"updated_at":  now,
		}
		if req.Operator != "" {
			updates["resolved_by"] = req.Operator
		}
		if corrected != "" {
			updates["resolved_email"] = corrected
		}
		// guarded on status so two operators cannot both resolve it
		r := tx.Model(&models.EmailBounce{}).Where("id = ? AND status = ?", b.ID, b.Status).Updates(updates)
		if r.Error != nil {
			return fmt.Errorf("failed to update bounce: %w", r.Error)
		}
		if r.RowsAffected == 0 {
			return fmt.Errorf("%s changed concurrently: %w", b.ID, ErrInvalidTransition)
		}

		if corrected != "" && corrected != b.OriginalEmail {
			userID, updated, err := moveAccount(ctx, tx, b.OriginalEmail, corrected)
			if err != nil {
				return err
			}
			res.UserID, res.UserUpdated = userID, updated
		}

		if err := tx.Where("id = ?", b.ID).First(&b).Error; err != nil {
			return fmt.Errorf("failed to reload bounce: %w", err)
		}
		res.Bounce = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infow("email_bounce_resolved", "bounce_id", req.ID, "status", req.Status,
		"operator", req.Operator, "user_updated", res.UserUpdated)
	return res, nil
}

func moveAccount(ctx context.Context, tx *gorm.DB, from, to string) (string, bool, error) {
	var owner models.User
	err := tx.WithContext(ctx).Where("email = ?", from).First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load user: %w", err)
	}

	var taken int64
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("email = ?", to).Count(&taken).Error; err != nil {
		return "", false, fmt.Errorf("failed to check corrected email: %w", err)
	}
	if taken > 0 {
		return owner.ID, false, nil
	}

	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", owner.ID).
		Update("email", to).Error; err != nil {
		return "", false, fmt.Errorf("failed to update user email: %w", err)
	}
	return owner.ID, true, nil
}
