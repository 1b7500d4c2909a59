package webhook_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/funnelhook/internal/app/service/account"
	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/app/service/deliverability"
	"github.com/fatflowers/funnelhook/internal/app/service/enrollment"
	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	"github.com/fatflowers/funnelhook/internal/app/service/side_effect"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_log"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/metrics"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

var (
	// ErrNothingEnrolled means the purchase resolved only to courses that do
	// not exist. The delivery is left retryable.
	ErrNothingEnrolled = errors.New("no course enrolled")
	// ErrInternal wraps a recovered panic.
	ErrInternal = errors.New("internal pipeline failure")
)

// Result is what the HTTP layer returns to the provider.
type Result struct {
	Success     bool            `json:"success"`
	Duplicate   bool            `json:"duplicate"`
	EventID     string          `json:"event_id"`
	Kind        types.EventKind `json:"kind,omitempty"`
	CourseSlugs []string        `json:"course_slugs,omitempty"`
	Effects     map[string]bool `json:"effects,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// derived is stored in WebhookEvent.Derived. EmailWellFormed is the syntax
// check only; malformed addresses are still processed.
type derived struct {
	Event           *payload.Event          `json:"event,omitempty"`
	EmailWellFormed bool                    `json:"email_well_formed"`
	Deliverability  *deliverability.Outcome `json:"deliverability,omitempty"`
	Resolution      *catalog.Resolution     `json:"resolution,omitempty"`
}

// outcome is stored in WebhookEvent.Result.
type outcome struct {
	CourseSlugs []string             `json:"course_slugs,omitempty"`
	Enrollment  *enrollment.Result   `json:"enrollment,omitempty"`
	UserID      string               `json:"user_id,omitempty"`
	NewUser     bool                 `json:"new_user,omitempty"`
	Cancelled   int64                `json:"cancelled,omitempty"`
	Effects     side_effect.Outcomes `json:"effects,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Normalizer   *payload.Normalizer
	Gate         *deliverability.Gate
	AuditLog     *webhook_log.Service
	Resolver     *account.Resolver
	Mapper       *catalog.Mapper
	Orchestrator *enrollment.Orchestrator
	Effects      *side_effect.Factory
	Dispatcher   *side_effect.Dispatcher
	Log          *zap.SugaredLogger
}

type Handler struct {
	db           *gorm.DB
	normalizer   *payload.Normalizer
	gate         *deliverability.Gate
	audit        *webhook_log.Service
	resolver     *account.Resolver
	mapper       *catalog.Mapper
	orchestrator *enrollment.Orchestrator
	effects      *side_effect.Factory
	dispatcher   *side_effect.Dispatcher
	log          *zap.SugaredLogger
}

func New(p Params) *Handler {
	return &Handler{
		db:           p.DB,
		normalizer:   p.Normalizer,
		gate:         p.Gate,
		audit:        p.AuditLog,
		resolver:     p.Resolver,
		mapper:       p.Mapper,
		orchestrator: p.Orchestrator,
		effects:      p.Effects,
		dispatcher:   p.Dispatcher,
		log:          p.Log,
	}
}

type delivery struct {
	provider types.Provider
	raw      []byte
	meta     payload.RequestMeta
	replayOf string
	// force skips deduplication; enrollment and fenced effects stay idempotent.
	force bool
}

// Handle runs one inbound delivery through the pipeline. Errors wrap
// payload.ErrMissingEmail / ErrMalformedPayload (bad request),
// webhook_log.ErrInFlight (retry later) or an internal failure.
func (h *Handler) Handle(ctx context.Context, provider types.Provider, raw []byte, meta payload.RequestMeta) (*Result, error) {
	return h.process(ctx, &delivery{provider: provider, raw: raw, meta: meta})
}

// Replay re-feeds a stored delivery. Without force, an already processed
// transaction is reported as a duplicate.
func (h *Handler) Replay(ctx context.Context, eventID string, force bool) (*Result, error) {
	orig, err := h.audit.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	d := &delivery{provider: types.Provider(orig.Provider), raw: orig.Payload, replayOf: orig.ID, force: force}
	var prev derived
	if len(orig.Derived) > 0 && json.Unmarshal(orig.Derived, &prev) == nil && prev.Event != nil {
		d.meta = payload.RequestMeta{ClientIP: prev.Event.ClientIP, UserAgent: prev.Event.UserAgent}
	}
	logctx.FromCtx(ctx, h.log).Infow("webhook_replay", "event_id", eventID, "force", force)
	return h.process(ctx, d)
}

func (h *Handler) process(ctx context.Context, d *delivery) (res *Result, err error) {
	start := time.Now()
	log := logctx.FromCtx(ctx, h.log)
	eventID := tool.GenerateUUIDV7()
	res = &Result{EventID: eventID}
	row := &models.WebhookEvent{
		ID:       eventID,
		Provider: string(d.provider),
		Payload:  rawJSON(d.raw),
		Status:   models.WebhookEventStatusFailed,
	}
	if d.replayOf != "" {
		row.ReplayOf = lo.ToPtr(d.replayOf)
	}

	var (
		reservation *models.WebhookReservation
		appended    bool
	)
	record := func() {
		appended = true
		h.appendRow(ctx, row)
	}
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		log.Errorf("webhook pipeline panicked: event_id=%s panic=%v\n%s", eventID, p, debug.Stack())
		if ferr := h.audit.Finish(context.WithoutCancel(ctx), reservation, false, eventID); ferr != nil {
			log.Errorf("failed to release reservation: %v", ferr)
		}
		if !appended {
			row.EventType = models.WebhookEventTypeError
			row.Status = models.WebhookEventStatusFailed
			row.Result = toJSON(&outcome{Error: fmt.Sprintf("panic: %v", p)})
			h.appendRow(ctx, row)
		}
		metrics.ObserveWebhook(string(d.provider), models.WebhookEventTypeError, "panic")
		res = &Result{EventID: eventID, Kind: res.Kind, Error: ErrInternal.Error()}
		err = fmt.Errorf("%w: %v", ErrInternal, p)
	}()
	log.Infow("webhook_received", "provider", d.provider, "event_id", eventID, "bytes", len(d.raw), "replay_of", d.replayOf)

	ev, err := h.normalizer.Normalize(d.raw, d.meta)
	metrics.ObserveStage("webhook", "normalize", start)
	if err != nil {
		row.EventType = models.WebhookEventTypeInvalid
		row.Result = toJSON(&outcome{Error: err.Error()})
		record()
		metrics.ObserveWebhook(string(d.provider), models.WebhookEventTypeInvalid, "invalid")
		log.Warnw("webhook_invalid", "event_id", eventID, "err", err)
		res.Error = err.Error()
		return res, err
	}
	res.Kind = ev.Kind
	row.EventType = string(ev.Kind)
	row.Email = ev.Email
	row.TransactionID = ev.TransactionID
	der := &derived{Event: ev, EmailWellFormed: h.normalizer.WellFormedEmail(ev.Email)}

	if ev.Kind == types.EventKindPurchase && h.gate != nil {
		gateStart := time.Now()
		der.Deliverability = h.gate.Check(ctx, ev.Email)
		metrics.ObserveStage("webhook", "deliverability", gateStart)
	}

	if !d.force {
		dup, err := h.dedup(ctx, d.provider, ev)
		if err == nil && !dup {
			reservation, err = h.audit.Reserve(ctx, d.provider, ev.Kind, ev.TransactionID)
			dup = errors.Is(err, webhook_log.ErrAlreadyProcessed)
			if dup {
				err = nil
			}
		}
		if dup {
			row.Duplicate = true
			row.Status = models.WebhookEventStatusSent
			row.Derived = toJSON(der)
			record()
			metrics.ObserveWebhook(string(d.provider), string(ev.Kind), "duplicate")
			log.Infow("webhook_duplicate", "event_id", eventID, "transaction_id", ev.TransactionID, "kind", ev.Kind)
			res.Success, res.Duplicate = true, true
			return res, nil
		}
		if err != nil {
			row.Derived = toJSON(der)
			row.Result = toJSON(&outcome{Error: err.Error()})
			if !errors.Is(err, webhook_log.ErrInFlight) {
				row.EventType = models.WebhookEventTypeError
			}
			record()
			metrics.ObserveWebhook(string(d.provider), string(ev.Kind), outcomeFor(err))
			res.Error = err.Error()
			return res, err
		}
	}

	var out *outcome
	if ev.Kind == types.EventKindRefund {
		out, err = h.refund(ctx, d, ev, eventID)
	} else {
		out, err = h.purchase(ctx, d, ev, eventID, der)
	}
	row.Derived = toJSON(der)
	if err != nil {
		if ferr := h.audit.Finish(ctx, reservation, false, eventID); ferr != nil {
			log.Errorf("failed to release reservation: %v", ferr)
		}
		label := "error"
		if errors.Is(err, ErrNothingEnrolled) {
			// the row keeps its purchase type so operators see the skipped slugs
			label = "not_enrolled"
		} else {
			row.EventType = models.WebhookEventTypeError
		}
		if out == nil {
			out = &outcome{}
		}
		out.Error = err.Error()
		row.Result = toJSON(out)
		record()
		metrics.ObserveWebhook(string(d.provider), string(ev.Kind), label)
		log.Errorf("webhook processing failed: event_id=%s kind=%s txn=%s err=%v", eventID, ev.Kind, ev.TransactionID, err)
		res.Error = err.Error()
		return res, err
	}

	row.Status = models.WebhookEventStatusSent
	row.Result = toJSON(out)
	record()
	if err := h.audit.Finish(ctx, reservation, true, eventID); err != nil {
		// enrollment is committed; a stuck reservation only delays retries until the lease ends
		log.Errorf("failed to finish reservation: %v", err)
	}

	metrics.ObserveWebhook(string(d.provider), string(ev.Kind), "processed")
	metrics.ObserveStage("webhook", string(ev.Kind), start)
	res.Success = true
	res.CourseSlugs = out.CourseSlugs
	res.Effects = out.Effects.Flags()
	log.Infow("webhook_processed", "event_id", eventID, "kind", ev.Kind, "courses", out.CourseSlugs,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// dedup is the audit-log half of check-then-reserve.
func (h *Handler) dedup(ctx context.Context, provider types.Provider, ev *payload.Event) (bool, error) {
	if ev.TransactionID == "" {
		logctx.FromCtx(ctx, h.log).Warnw("webhook_without_transaction_id", "email", ev.Email)
		return false, nil
	}
	return h.audit.IsProcessed(ctx, provider, ev.Kind, ev.TransactionID)
}

func (h *Handler) purchase(ctx context.Context, d *delivery, ev *payload.Event, eventID string, der *derived) (*outcome, error) {
	var (
		user   *models.User
		isNew  bool
		resol  catalog.Resolution
		result *enrollment.Result
	)
	txStart := time.Now()
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, isNew, err = h.resolver.Resolve(ctx, tx, ev, d.provider)
		if err != nil {
			return err
		}
		resol = h.mapper.Resolve(ev.ProductID, ev.ProductName)
		opts := enrollment.Options{TransactionID: ev.TransactionID}
		if resol.Product != nil {
			opts.SupersedesPreview = resol.Product.SupersedesPreview
		}
		result, err = h.orchestrator.Enroll(ctx, tx, user, resol.Slugs, opts)
		return err
	})
	metrics.ObserveStage("webhook", "enroll_tx", txStart)
	if err != nil {
		return nil, fmt.Errorf("purchase transaction: %w", err)
	}
	der.Resolution = &resol

	enrolled := result.Enrolled()
	if len(enrolled) == 0 {
		// no effect may fire for a purchase that enrolled nobody
		return &outcome{Enrollment: result, UserID: user.ID, NewUser: isNew},
			fmt.Errorf("purchase of %v: %w", resol.Slugs, ErrNothingEnrolled)
	}
	effects := h.dispatcher.Run(ctx, h.effects.PurchaseEffects(&side_effect.Purchase{
		EventID:    eventID,
		Provider:   d.provider,
		Event:      ev,
		User:       user,
		IsNewUser:  isNew,
		Resolution: resol,
		Enrolled:   enrolled,
		Created:    result.Created,
	}))
	return &outcome{
		CourseSlugs: enrolled,
		Enrollment:  result,
		UserID:      user.ID,
		NewUser:     isNew,
		Effects:     effects,
	}, nil
}

func (h *Handler) refund(ctx context.Context, d *delivery, ev *payload.Event, eventID string) (*outcome, error) {
	var (
		user      *models.User
		cancelled int64
	)
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = account.FindByEmail(ctx, tx, ev.Email)
		if err != nil || user == nil {
			return err
		}
		cancelled, err = h.orchestrator.CancelAll(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("refund transaction: %w", err)
	}
	if user == nil {
		logctx.FromCtx(ctx, h.log).Warnw("refund_for_unknown_user", "email", ev.Email, "transaction_id", ev.TransactionID)
		return &outcome{}, nil
	}
	effects := h.dispatcher.Run(ctx, h.effects.RefundEffects(&side_effect.Refund{
		EventID: eventID, Provider: d.provider, Event: ev, User: user, Cancelled: cancelled,
	}))
	return &outcome{UserID: user.ID, Cancelled: cancelled, Effects: effects}, nil
}

// appendRow is best effort; the audit write must not change the response.
func (h *Handler) appendRow(ctx context.Context, row *models.WebhookEvent) {
	if err := h.audit.Append(context.WithoutCancel(ctx), row); err != nil {
		logctx.FromCtx(ctx, h.log).Errorf("audit append failed: event_id=%s err=%v", row.ID, err)
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, webhook_log.ErrInFlight) {
		return "in_flight"
	}
	return "error"
}

func toJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return raw
}

// rawJSON keeps the delivery verbatim when it is JSON and wraps it otherwise,
// so the jsonb column always accepts it.
func rawJSON(raw []byte) datatypes.JSON {
	if len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	return toJSON(map[string]string{"raw": string(raw)})
}
