package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

// Resolver finds or creates the learner account for a purchase.
type Resolver struct {
	cfg  config.AccountsConfig
	log  *zap.SugaredLogger
	cost int
	now  func() time.Time
}

func NewResolver(cfg *config.Config, log *zap.SugaredLogger) *Resolver {
	return &Resolver{cfg: cfg.Accounts, log: log, cost: bcrypt.DefaultCost, now: time.Now}
}

// Resolve must run inside the enrollment transaction. It returns the user and
// whether this call created it. Losing a concurrent insert race resolves to
// the winner's row.
func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, ev *payload.Event, provider types.Provider) (*models.User, bool, error) {
	email := payload.NormalizeEmail(ev.Email)
	if email == "" {
		return nil, false, fmt.Errorf("resolve account: %w", payload.ErrMissingEmail)
	}

	user, err := FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if err := r.backfill(ctx, tx, user, ev, provider); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	candidate, err := r.newUser(email, ev, provider)
	if err != nil {
		return nil, false, err
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(candidate)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		logctx.FromCtx(ctx, r.log).Infow("account_created", "user_id", candidate.ID, "email", email, "source", provider)
		return candidate, true, nil
	}

	// another delivery created the row first
	user, err = FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, fmt.Errorf("user %s vanished after insert conflict", email)
	}
	if err := r.backfill(ctx, tx, user, ev, provider); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// FindByEmail returns nil without error when no user owns the address.
func FindByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	var u models.User
	err := db.WithContext(ctx).Where("email = ?", payload.NormalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &u, nil
}

func (r *Resolver) newUser(email string, ev *payload.Event, provider types.Provider) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(r.cfg.DefaultPassword), r.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash default credential: %w", err)
	}
	now := r.now()
	role := r.cfg.Role
	if role == "" {
		role = "student"
	}
	return &models.User{
		ID:                     tool.GenerateUUIDV7(),
		Email:                  email,
		FirstName:              optional(ev.FirstName),
		LastName:               optional(ev.LastName),
		Phone:                  optional(ev.Phone),
		PasswordHash:           string(hash),
		Role:                   role,
		Source:                 optional(string(provider)),
		SourceDetail:           optional(sourceDetail(ev)),
		RegistrationIP:         optional(ev.ClientIP),
		RegistrationUserAgent:  optional(ev.UserAgent),
		TermsAcceptedAt:        &now,
		TermsVersion:           optional(r.cfg.TermsVersion),
		RefundPolicyAcceptedAt: &now,
	}, nil
}

// backfill fills empty profile and compliance fields; it never overwrites.
func (r *Resolver) backfill(ctx context.Context, tx *gorm.DB, u *models.User, ev *payload.Event, provider types.Provider) error {
	updates := map[string]any{}
	set := func(column string, current *string, value string, assign func(*string)) {
		if current == nil || *current == "" {
			if v := strings.TrimSpace(value); v != "" {
				updates[column] = v
				assign(lo.ToPtr(v))
			}
		}
	}
	set("first_name", u.FirstName, ev.FirstName, func(v *string) { u.FirstName = v })
	set("last_name", u.LastName, ev.LastName, func(v *string) { u.LastName = v })
	set("phone", u.Phone, ev.Phone, func(v *string) { u.Phone = v })
	set("source", u.Source, string(provider), func(v *string) { u.Source = v })
	set("source_detail", u.SourceDetail, sourceDetail(ev), func(v *string) { u.SourceDetail = v })
	set("registration_ip", u.RegistrationIP, ev.ClientIP, func(v *string) { u.RegistrationIP = v })
	set("registration_user_agent", u.RegistrationUserAgent, ev.UserAgent, func(v *string) { u.RegistrationUserAgent = v })
	set("terms_version", u.TermsVersion, r.cfg.TermsVersion, func(v *string) { u.TermsVersion = v })

	now := r.now()
	if u.TermsAcceptedAt == nil {
		updates["terms_accepted_at"] = now
		u.TermsAcceptedAt = &now
	}
	if u.RefundPolicyAcceptedAt == nil {
		updates["refund_policy_accepted_at"] = now
		u.RefundPolicyAcceptedAt = &now
	}
	if len(updates) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to backfill user %s: %w", u.ID, err)
	}
	logctx.FromCtx(ctx, r.log).Debugw("account_backfilled", "user_id", u.ID, "fields", lo.Keys(updates))
	return nil
}

func sourceDetail(ev *payload.Event) string {
	if ev.ProductID != "" {
		return ev.ProductID
	}
	return ev.ProductName
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SetHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (r *Resolver) SetHashCost(cost int) {
	r.cost = cost
}
