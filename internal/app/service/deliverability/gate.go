package deliverability

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/verifier"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

const BounceTypePrePurchase = "pre_purchase"

// Outcome is advisory; the pipeline proceeds whatever it says.
type Outcome struct {
	// Checked is false when the verifier failed and nothing is known.
	Checked    bool        `json:"checked"`
	Valid      bool        `json:"valid"`
	Cached     bool        `json:"cached,omitempty"`
	ResultCode string      `json:"result_code,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	BounceID   string      `json:"bounce_id,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type Gate struct {
	db        *gorm.DB
	verifier  verifier.Verifier
	suggester Suggester
	cache     Cache
	timeout   time.Duration
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewGate(gdb *gorm.DB, v verifier.Verifier, s Suggester, c Cache, cfg *config.Config, log *zap.SugaredLogger) *Gate {
	timeout := cfg.Timeouts.Verify
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gate{db: gdb, verifier: v, suggester: s, cache: c, timeout: timeout, log: log, now: time.Now}
}

// Check never fails the caller. Invalid addresses get a suggestion and an
// EmailBounce row; verifier errors are logged and reported as unchecked.
func (g *Gate) Check(ctx context.Context, email string) *Outcome {
	log := logctx.FromCtx(ctx, g.log)

	res, cached := g.cache.Get(ctx, email)
	if !cached {
		vctx, cancel := context.WithTimeout(ctx, g.timeout)
		var err error
		res, err = g.verifier.Verify(vctx, email)
		cancel()
		if err != nil {
			log.Warnw("email_verification_failed", "email", email, "err", err)
			return &Outcome{Error: err.Error()}
		}
		g.cache.Set(ctx, email, res)
	}

	out := &Outcome{Checked: true, Valid: res.IsValid, Cached: cached, ResultCode: res.ResultCode, Reason: res.Reason}
	if res.IsValid {
		return out
	}

	out.Suggestion = g.suggest(email, res)
	bounce, err := g.recordBounce(ctx, email, res, out.Suggestion)
	if err != nil {
		log.Errorf("failed to record email bounce: email=%s err=%v", email, err)
		return out
	}
	out.BounceID = bounce.ID
	log.Infow("email_undeliverable", "email", email, "result_code", res.ResultCode,
		"suggestion", lo.FromPtr(out.Suggestion).Email)
	return out
}

func (g *Gate) suggest(email string, res *verifier.Result) *Suggestion {
	if res.DidYouMean != "" && res.DidYouMean != email {
		return &Suggestion{Email: res.DidYouMean, Confidence: 1, Source: SuggestionSourceVerifier}
	}
	if g.suggester == nil {
		return nil
	}
	return g.suggester.Suggest(email)
}

// recordBounce inserts the sentinel-user bounce or bumps its counter. Status
// is only set on insert; afterwards it belongs to the operators.
func (g *Gate) recordBounce(ctx context.Context, email string, res *verifier.Result, s *Suggestion) (*models.EmailBounce, error) {
	now := g.now()
	b := &models.EmailBounce{
		ID:            tool.GenerateUUIDV7(),
		UserID:        models.NoUserID,
		OriginalEmail: email,
		BounceType:    BounceTypePrePurchase,
		ResultCode:    res.ResultCode,
		Reason:        res.Reason,
		BounceCount:   1,
		LastBouncedAt: now,
		Status:        types.BounceStatusNeedsManual,
	}
	if s != nil {
		b.SuggestedEmail = lo.ToPtr(s.Email)
		b.SuggestionConfidence = lo.ToPtr(s.Confidence)
		b.SuggestionSource = lo.ToPtr(s.Source)
		b.Status = types.BounceStatusPending
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "original_email"}},
		DoUpdates: clause.Assignments(map[string]any{
			"bounce_count":    gorm.Expr("bounce_count + 1"),
			"last_bounced_at": now,
			"result_code":     res.ResultCode,
			"reason":          res.Reason,
			"updated_at":      now,
		}),
	}).Create(b).Error
	if err != nil {
		return nil, err
	}

	var stored models.EmailBounce
	if err := g.db.WithContext(ctx).
		Where("user_id = ? AND original_email = ?", models.NoUserID, email).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}
