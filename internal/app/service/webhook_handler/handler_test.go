package webhook_handler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fatflowers/funnelhook/internal/app/service/account"
	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/app/service/deliverability"
	"github.com/fatflowers/funnelhook/internal/app/service/enrollment"
	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	"github.com/fatflowers/funnelhook/internal/app/service/side_effect"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_log"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/conversion"
	"github.com/fatflowers/funnelhook/internal/platform/db/dbtest"
	"github.com/fatflowers/funnelhook/internal/platform/verifier"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/types"
)

type fakeVerifier struct {
	invalid map[string]bool
	err     error
	panics  bool
}

func (f *fakeVerifier) Verify(_ context.Context, email string) (*verifier.Result, error) {
	if f.panics {
		panic("verifier exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.invalid[email] {
		return &verifier.Result{Email: email, IsValid: false, ResultCode: "invalid"}, nil
	}
	return &verifier.Result{Email: email, IsValid: true, ResultCode: "valid"}, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

type fakeReporter struct {
	mu     sync.Mutex
	events []*conversion.Event
}

func (r *fakeReporter) Report(_ context.Context, ev *conversion.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }

type fixture struct {
	db       *gorm.DB
	h        *Handler
	verifier *fakeVerifier
	mailer   *fakeMailer
	reporter *fakeReporter
	courses  map[string]*models.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		DefaultCurrency: "USD",
		Accounts:        config.AccountsConfig{DefaultPassword: "Welcome-1", Role: "student", TermsVersion: "2024-01"},
		Dedup:           config.DedupConfig{Lease: time.Minute},
		Timeouts:        config.TimeoutsConfig{Verify: time.Second, Email: time.Second, Conversion: time.Second, Publish: time.Second},
		Conversion:      config.ConversionConfig{DefaultValue: decimal.NewFromInt(97), DefaultCurrency: "USD", DefaultName: "Course Purchase"},
		Catalog: types.Catalog{
			DefaultCourse:  "main",
			FlagshipCourse: "certification",
			PreviewCourses: []string{"fm-mini-diploma"},
			Products: []*types.Product{
				{ID: "fm-mini-diploma", Name: "FM Mini Diploma", Courses: []string{"fm-mini-diploma"}, Price: decimal.NewFromInt(27)},
				{ID: "pro-bundle", Name: "Pro Bundle", Courses: []string{"certification", "business"}},
			},
			Keywords: []types.KeywordRule{{Keyword: "certification", Courses: []string{"certification"}}},
		},
	}

	f := &fixture{db: gdb, verifier: &fakeVerifier{}, mailer: &fakeMailer{}, reporter: &fakeReporter{}}
	f.courses = dbtest.SeedCourses(t, gdb, "main", "fm-mini-diploma", "certification", "business")

	mapper := catalog.NewMapper(cfg)
	resolver := account.NewResolver(cfg, log)
	resolver.SetHashCost(bcrypt.MinCost)
	f.h = New(Params{
		DB:           gdb,
		Normalizer:   payload.NewNormalizer("USD"),
		Gate:         deliverability.NewGate(gdb, f.verifier, deliverability.NewSuggester(), deliverability.NewCache(nil, cfg, log), cfg, log),
		AuditLog:     webhook_log.New(gdb, cfg, log),
		Resolver:     resolver,
		Mapper:       mapper,
		Orchestrator: enrollment.NewOrchestrator(mapper, log),
		Effects:      side_effect.NewFactory(gdb, f.mailer, f.reporter, nopPublisher{}, mapper, cfg, log),
		Dispatcher:   side_effect.NewDispatcher(cfg, log),
		Log:          log,
	})
	return f
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

const miniDiplomaPurchase = `{"event":"purchase","contact":{"email":"JANE@X.com ","first_name":"Jane"},
	"purchase":{"transaction_id":"T-1001","product_id":"fm-mini-diploma","amount":27}}`

func TestHandle_TrackedPurchaseDeliveredTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{ClientIP: "1.2.3.4"})
	require.NoError(t, err)
	require.True(t, first.Success)
	require.False(t, first.Duplicate)
	require.Equal(t, types.EventKindPurchase, first.Kind)
	require.Equal(t, []string{"fm-mini-diploma"}, first.CourseSlugs)
	require.True(t, first.Effects[side_effect.EffectWelcomeEmail])

	second, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, second.Success)
	require.True(t, second.Duplicate)

	require.EqualValues(t, 1, f.count(t, &models.User{}, "email = ?", "jane@x.com"))
	require.EqualValues(t, 1, f.count(t, &models.Enrollment{}, "course_id = ?", f.courses["fm-mini-diploma"].ID))
	require.EqualValues(t, 2, f.count(t, &models.WebhookEvent{}, ""))
	require.EqualValues(t, 1, f.count(t, &models.WebhookEvent{}, "duplicate = ?", true))
	require.Len(t, f.mailer.sent, 1)
	require.Len(t, f.reporter.events, 1)
	require.Equal(t, 27.0, f.reporter.events[0].CustomData.Value)

	var course models.Course
	require.NoError(t, f.db.First(&course, "slug = ?", "fm-mini-diploma").Error)
	require.EqualValues(t, 1, course.EnrollmentCount)

	var row models.WebhookEvent
	require.NoError(t, f.db.First(&row, "id = ?", first.EventID).Error)
	require.Equal(t, models.WebhookEventStatusSent, row.Status)
	require.Equal(t, "T-1001", row.TransactionID)
	require.Equal(t, "purchase", row.EventType)
	var der derived
	require.NoError(t, json.Unmarshal(row.Derived, &der))
	require.Equal(t, "contact_purchase", der.Event.Shape)
	require.True(t, der.EmailWellFormed)
	require.True(t, der.Deliverability.Valid)
	require.Equal(t, catalog.SourceProduct, der.Resolution.Source)
}

func TestHandle_FlatPayloadWithoutTransactionID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte(`{"product":"fm-mini-diploma","email":"JANE@X.com ","amount":27}`)

	first, err := f.h.Handle(ctx, types.ProviderClickFunnels, body, payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, first.Success)
	require.Equal(t, []string{"fm-mini-diploma"}, first.CourseSlugs)

	// nothing to dedup on, so the redelivery is processed again and stays idempotent
	second, err := f.h.Handle(ctx, types.ProviderClickFunnels, body, payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, second.Success)
	require.False(t, second.Duplicate)

	require.EqualValues(t, 1, f.count(t, &models.User{}, "email = ?", "jane@x.com"))
	require.EqualValues(t, 1, f.count(t, &models.Enrollment{}, "course_id = ?", f.courses["fm-mini-diploma"].ID))
	require.EqualValues(t, 2, f.count(t, &models.WebhookEvent{}, ""))
	require.Len(t, f.mailer.sent, 1)
	require.Len(t, f.reporter.events, 1)
	require.Equal(t, 27.0, f.reporter.events[0].CustomData.Value)

	var row models.WebhookEvent
	require.NoError(t, f.db.First(&row, "id = ?", second.EventID).Error)
	var out outcome
	require.NoError(t, json.Unmarshal(row.Result, &out))
	require.Equal(t, []string{"fm-mini-diploma"}, out.Enrollment.Existing)
	for _, o := range out.Effects {
		if o.Effect == side_effect.EffectAdConversion || o.Effect == side_effect.EffectEventStream {
			require.True(t, o.Skipped, o.Effect)
		}
	}
}

func TestHandle_NoCourseEnrolled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Delete(f.courses["main"]).Error)
	body := []byte(`{"email":"a@b.co","product_name":"Spring Sale","transaction_id":"T-9"}`)

	res, err := f.h.Handle(ctx, types.ProviderClickFunnels, body, payload.RequestMeta{})
	require.ErrorIs(t, err, ErrNothingEnrolled)
	require.False(t, res.Success)
	require.Empty(t, res.CourseSlugs)
	require.EqualValues(t, 0, f.count(t, &models.Enrollment{}, ""))
	require.EqualValues(t, 0, f.count(t, &models.UserTag{}, ""))
	require.Empty(t, f.mailer.sent)
	require.Empty(t, f.reporter.events)

	var row models.WebhookEvent
	require.NoError(t, f.db.First(&row, "id = ?", res.EventID).Error)
	require.Equal(t, models.WebhookEventStatusFailed, row.Status)
	require.Equal(t, "purchase", row.EventType)
	var out outcome
	require.NoError(t, json.Unmarshal(row.Result, &out))
	require.Equal(t, []string{"main"}, out.Enrollment.Skipped)
	require.Empty(t, out.Effects)

	// once the course exists the redelivery is processed, not deduplicated
	dbtest.SeedCourses(t, f.db, "main")
	res, err = f.h.Handle(ctx, types.ProviderClickFunnels, body, payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.Duplicate)
	require.Equal(t, []string{"main"}, res.CourseSlugs)
	require.Len(t, f.mailer.sent, 1)
	require.Len(t, f.reporter.events, 1)
}

func TestHandle_PanicIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifier.panics = true

	res, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.ErrorIs(t, err, ErrInternal)
	require.False(t, res.Success)
	require.Equal(t, types.EventKindPurchase, res.Kind)

	var row models.WebhookEvent
	require.NoError(t, f.db.First(&row, "id = ?", res.EventID).Error)
	require.Equal(t, models.WebhookEventTypeError, row.EventType)
	require.Equal(t, models.WebhookEventStatusFailed, row.Status)
	require.Contains(t, string(row.Result), "verifier exploded")
	require.EqualValues(t, 0, f.count(t, &models.Enrollment{}, ""))

	f.verifier.panics = false
	res, err = f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.Duplicate)
}

func TestHandle_BundleAndUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.NoError(t, err)

	res, err := f.h.Handle(ctx, types.ProviderClickFunnels,
		[]byte(`{"email":"jane@x.com","product_id":"pro-bundle","order_id":"T-2002","amount":"997"}`), payload.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, []string{"certification", "business"}, res.CourseSlugs)

	var e models.Enrollment
	require.NoError(t, f.db.First(&e, "course_id = ?", f.courses["fm-mini-diploma"].ID).Error)
	require.Equal(t, types.EnrollmentStatusCompleted, e.Status)
	require.EqualValues(t, 1, f.count(t, &models.User{}, ""))
	require.Len(t, f.mailer.sent, 1)
}

func TestHandle_UnknownProductFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	res, err := f.h.Handle(context.Background(), types.ProviderClickFunnels,
		[]byte(`{"email":"a@b.co","product_name":"Spring Sale","transaction_id":"T-9"}`), payload.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, []string{"main"}, res.CourseSlugs)
}

func TestHandle_RefundCancelsActiveEnrollments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.NoError(t, err)

	refund := `{"event":"order.refunded","data":{"id":"T-1001","contact":{"email":"jane@x.com"}}}`
	res, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(refund), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.Duplicate)
	require.Equal(t, types.EventKindRefund, res.Kind)
	require.EqualValues(t, 1, f.count(t, &models.Enrollment{}, "status = ?", types.EnrollmentStatusCancelled))

	// redelivered refund is a duplicate
	res, err = f.h.Handle(ctx, types.ProviderClickFunnels, []byte(refund), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Duplicate)
}

func TestHandle_RefundForUnknownUser(t *testing.T) {
	f := newFixture(t)
	res, err := f.h.Handle(context.Background(), types.ProviderClickFunnels,
		[]byte(`{"email":"ghost@x.com","status":"refund","transaction_id":"T-1"}`), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 0, f.count(t, &models.User{}, ""))
}

func TestHandle_InvalidPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(`{"contact":{"first_name":"Jane"}}`), payload.RequestMeta{})
	require.ErrorIs(t, err, payload.ErrMissingEmail)
	require.False(t, res.Success)

	_, err = f.h.Handle(ctx, types.ProviderClickFunnels, []byte(`<xml/>`), payload.RequestMeta{})
	require.ErrorIs(t, err, payload.ErrMalformedPayload)

	require.EqualValues(t, 2, f.count(t, &models.WebhookEvent{}, "event_type = ?", models.WebhookEventTypeInvalid))
	require.EqualValues(t, 0, f.count(t, &models.User{}, ""))
}

func TestHandle_DeliverabilityIsNonBlocking(t *testing.T) {
	f := newFixture(t)
	f.verifier.invalid = map[string]bool{"jane@gmial.com": true}

	res, err := f.h.Handle(context.Background(), types.ProviderClickFunnels,
		[]byte(`{"email":"jane@gmial.com","product_id":"fm-mini-diploma","transaction_id":"T-5"}`), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.EqualValues(t, 1, f.count(t, &models.Enrollment{}, ""))

	var b models.EmailBounce
	require.NoError(t, f.db.First(&b, "original_email = ?", "jane@gmial.com").Error)
	require.Equal(t, models.NoUserID, b.UserID)
	require.Equal(t, "jane@gmail.com", *b.SuggestedEmail)
}

func TestHandle_InFlightDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.audit.Reserve(ctx, types.ProviderClickFunnels, types.EventKindPurchase, "T-1001")
	require.NoError(t, err)

	res, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.ErrorIs(t, err, webhook_log.ErrInFlight)
	require.False(t, res.Success)
	require.EqualValues(t, 0, f.count(t, &models.Enrollment{}, ""))
	require.EqualValues(t, 1, f.count(t, &models.WebhookEvent{}, "status = ?", models.WebhookEventStatusFailed))
}

func TestHandle_FailedAttemptIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// make the enrollment transaction fail after the user insert
	require.NoError(t, f.db.Migrator().DropTable(&models.Enrollment{}))
	_, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.Error(t, err)
	require.EqualValues(t, 0, f.count(t, &models.User{}, ""))
	require.EqualValues(t, 1, f.count(t, &models.WebhookEvent{}, "event_type = ?", models.WebhookEventTypeError))

	require.NoError(t, f.db.AutoMigrate(&models.Enrollment{}))
	res, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.Duplicate)
	require.EqualValues(t, 1, f.count(t, &models.Enrollment{}, ""))
}

func TestReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.h.Handle(ctx, types.ProviderClickFunnels, []byte(miniDiplomaPurchase), payload.RequestMeta{ClientIP: "1.2.3.4"})
	require.NoError(t, err)

	res, err := f.h.Replay(ctx, first.EventID, false)
	require.NoError(t, err)
	require.True(t, res.Duplicate)

	res, err = f.h.Replay(ctx, first.EventID, true)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.False(t, res.Duplicate)
	require.Equal(t, []string{"fm-mini-diploma"}, res.CourseSlugs)

	var row models.WebhookEvent
	require.NoError(t, f.db.First(&row, "id = ?", res.EventID).Error)
	require.Equal(t, first.EventID, *row.ReplayOf)
	require.EqualValues(t, 1, f.count(t, &models.Enrollment{}, ""))
	require.Len(t, f.mailer.sent, 1)

	_, err = f.h.Replay(ctx, "missing", false)
	require.ErrorIs(t, err, webhook_log.ErrNotFound)
}
