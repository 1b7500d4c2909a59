package side_effect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/conversion"
	"github.com/fatflowers/funnelhook/internal/platform/mailer"
	"github.com/fatflowers/funnelhook/internal/platform/stream"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

const (
	StreamTypePurchased = "enrollment.purchased"
	StreamTypeRefunded  = "enrollment.refunded"
)

// Purchase is the committed state the purchase effects are built from.
type Purchase struct {
	EventID    string
	Provider   types.Provider
	Event      *payload.Event
	User       *models.User
	IsNewUser  bool
	Resolution catalog.Resolution
	// Enrolled holds every slug the user is enrolled in after this purchase.
	Enrolled []string
	// Created is the subset of Enrolled this delivery created.
	Created []string
}

// tracked reports whether a redelivery of this purchase can be told apart
// from the first one: by transaction id, or because it created enrollments.
func (p *Purchase) tracked() bool {
	return p.Event.TransactionID != "" || len(p.Created) > 0
}

type Refund struct {
	EventID   string
	Provider  types.Provider
	Event     *payload.Event
	User      *models.User
	Cancelled int64
}

// StreamMessage is the JSON published to the event stream.
type StreamMessage struct {
	Type          string          `json:"type"`
	EventID       string          `json:"event_id"`
	Provider      types.Provider  `json:"provider"`
	UserID        string          `json:"user_id"`
	Email         string          `json:"email"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Courses       []string        `json:"courses,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	NewUser       bool            `json:"new_user,omitempty"`
	Cancelled     int64           `json:"cancelled,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Factory builds the effect queue for a committed pipeline result.
type Factory struct {
	db        *gorm.DB
	mailer    mailer.Mailer
	reporter  conversion.Reporter
	publisher stream.Publisher
	mapper    *catalog.Mapper
	conv      config.ConversionConfig
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewFactory(db *gorm.DB, m mailer.Mailer, r conversion.Reporter, p stream.Publisher, mapper *catalog.Mapper, cfg *config.Config, log *zap.SugaredLogger) *Factory {
	return &Factory{db: db, mailer: m, reporter: r, publisher: p, mapper: mapper, conv: cfg.Conversion, log: log, now: time.Now}
}

// PurchaseEffects builds the purchase queue. Without a transaction id the
// conversion and stream message only go out when the delivery created an
// enrollment, so a redelivery does not repeat them.
func (f *Factory) PurchaseEffects(p *Purchase) []Effect {
	if !p.tracked() {
		return []Effect{
			&welcomeEmail{f: f, user: p.User},
			untracked(EffectAdConversion),
			&purchaseTags{f: f, p: p},
			untracked(EffectEventStream),
		}
	}
	return []Effect{
		&welcomeEmail{f: f, user: p.User},
		&adConversion{f: f, p: p},
		&purchaseTags{f: f, p: p},
		&publish{f: f, key: p.User.ID, msg: &StreamMessage{
			Type:          StreamTypePurchased,
			EventID:       p.EventID,
			Provider:      p.Provider,
			UserID:        p.User.ID,
			Email:         p.User.Email,
			TransactionID: p.Event.TransactionID,
			Courses:       p.Enrolled,
			Amount:        p.Event.Amount,
			Currency:      p.Event.Currency,
			NewUser:       p.IsNewUser,
			OccurredAt:    f.now().UTC(),
		}},
	}
}

func (f *Factory) RefundEffects(r *Refund) []Effect {
	return []Effect{
		&publish{f: f, key: r.User.ID, msg: &StreamMessage{
			Type:          StreamTypeRefunded,
			EventID:       r.EventID,
			Provider:      r.Provider,
			UserID:        r.User.ID,
			Email:         r.User.Email,
			TransactionID: r.Event.TransactionID,
			Amount:        r.Event.Amount,
			Currency:      r.Event.Currency,
			Cancelled:     r.Cancelled,
			OccurredAt:    f.now().UTC(),
		}},
	}
}

// welcomeEmail is fenced by the welcome_email_sent tag.
type welcomeEmail struct {
	f    *Factory
	user *models.User
}

func (e *welcomeEmail) Name() string { return EffectWelcomeEmail }

func (e *welcomeEmail) Run(ctx context.Context) error {
	sent, err := HasTag(ctx, e.f.db, e.user.ID, types.TagWelcomeEmailSent)
	if err != nil {
		return err
	}
	if sent {
		return fmt.Errorf("welcome email already sent: %w", ErrSkipped)
	}
	if err := e.f.mailer.SendWelcome(ctx, e.user.Email, e.user.FirstNameOrEmpty()); err != nil {
		return err
	}
	// the mail is out; a lost tag write only risks a second email later
	return AddTags(context.WithoutCancel(ctx), e.f.db, e.user.ID, types.TagWelcomeEmailSent)
}

// adConversion is fenced per transaction by conversion_reported_<txn>.
type adConversion struct {
	f *Factory
	p *Purchase
}

func (e *adConversion) Name() string { return EffectAdConversion }

func (e *adConversion) Run(ctx context.Context) error {
	txn := e.p.Event.TransactionID
	fence := ""
	if txn != "" {
		fence = types.ConversionReportedTag(txn)
		done, err := HasTag(ctx, e.f.db, e.p.User.ID, fence)
		if err != nil {
			return err
		}
		if done {
			return fmt.Errorf("conversion for %s already reported: %w", txn, ErrSkipped)
		}
	}

	ev := e.f.ConversionEvent(e.p)
	if err := e.f.reporter.Report(ctx, ev); err != nil {
		return err
	}
	logctx.FromCtx(ctx, e.f.log).Infow("conversion_reported", "event_id", ev.EventID,
		"value", ev.CustomData.Value, "currency", ev.CustomData.Currency)
	if fence == "" {
		return nil
	}
	return AddTags(context.WithoutCancel(ctx), e.f.db, e.p.User.ID, fence)
}

// ConversionEvent builds the hashed conversion. Value precedence: payload
// amount, catalog price, configured default. A fresh ULID per attempt is the
// downstream idempotency key.
func (f *Factory) ConversionEvent(p *Purchase) *conversion.Event {
	value, currency := f.conv.DefaultValue, f.conv.DefaultCurrency
	name := f.conv.DefaultName

	product := p.Resolution.Product
	if product == nil && f.mapper != nil {
		product = f.mapper.Product(p.Event.ProductID, p.Event.ProductName)
	}
	switch {
	case p.Event.HasAmount():
		value, currency = p.Event.Amount, p.Event.Currency
	case product != nil && product.Price.IsPositive():
		value = product.Price
		if product.Currency != "" {
			currency = product.Currency
		}
	}
	switch {
	case strings.TrimSpace(p.Event.ProductName) != "":
		name = p.Event.ProductName
	case product != nil && product.Name != "":
		name = product.Name
	}
	if currency == "" {
		currency = "USD"
	}

	custom := conversion.NewCustomData(value, strings.ToUpper(currency))
	custom.ContentName = name
	custom.ContentIDs = p.Enrolled
	custom.OrderID = p.Event.TransactionID

	return &conversion.Event{
		EventName:    "Purchase",
		EventTime:    f.now().Unix(),
		EventID:      tool.GenerateULID(),
		ActionSource: "website",
		UserData: conversion.UserData{
			Email:      hashed(p.User.Email),
			Phone:      hashed(tool.DigitsOnly(p.Event.Phone)),
			FirstName:  hashed(firstNonEmpty(p.Event.FirstName, p.User.FirstNameOrEmpty())),
			LastName:   hashed(p.Event.LastName),
			ExternalID: hashed(p.User.ID),
			ClientIP:   p.Event.ClientIP,
			UserAgent:  p.Event.UserAgent,
		},
		CustomData: custom,
	}
}

type purchaseTags struct {
	f *Factory
	p *Purchase
}

func (e *purchaseTags) Name() string { return EffectTags }

func (e *purchaseTags) Run(ctx context.Context) error {
	tags := make([]string, 0, len(e.p.Enrolled)+1)
	for _, slug := range e.p.Enrolled {
		tags = append(tags, types.CoursePurchasedTag(slug))
	}
	tags = append(tags, types.ProviderPurchaseTag(e.p.Provider))
	return AddTags(ctx, e.f.db, e.p.User.ID, tags...)
}

// untracked stands in for an effect that cannot be fenced on this delivery.
type untracked string

func (e untracked) Name() string { return string(e) }

func (untracked) Run(context.Context) error {
	return fmt.Errorf("redelivery without transaction id created nothing: %w", ErrSkipped)
}

type publish struct {
	f   *Factory
	key string
	msg *StreamMessage
}

func (e *publish) Name() string { return EffectEventStream }

func (e *publish) Run(ctx context.Context) error {
	raw, err := json.Marshal(e.msg)
	if err != nil {
		return fmt.Errorf("encode stream message: %w", err)
	}
	return e.f.publisher.Publish(ctx, e.key, raw)
}

func hashed(s string) []string {
	if h := tool.SHA256Hex(s); h != "" {
		return []string{h}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
