package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/internal/app/service/bounce"
	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	"github.com/fatflowers/funnelhook/internal/app/service/statistics"
	wh "github.com/fatflowers/funnelhook/internal/app/service/webhook_handler"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_log"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db/dbtest"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/response"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

type fakeProcessor struct {
	err      error
	provider types.Provider
	raw      []byte
	meta     payload.RequestMeta
	replayed string
	force    bool
}

func (f *fakeProcessor) Handle(_ context.Context, provider types.Provider, raw []byte, meta payload.RequestMeta) (*wh.Result, error) {
	f.provider, f.raw, f.meta = provider, raw, meta
	res := &wh.Result{EventID: "evt-1", Kind: types.EventKindPurchase}
	if f.err != nil {
		res.Error = f.err.Error()
		return res, f.err
	}
	res.Success = true
	res.CourseSlugs = []string{"main"}
	return res, nil
}

func (f *fakeProcessor) Replay(_ context.Context, eventID string, force bool) (*wh.Result, error) {
	f.replayed, f.force = eventID, force
	if f.err != nil {
		return nil, f.err
	}
	return &wh.Result{Success: true, Duplicate: !force, EventID: "evt-2"}, nil
}

func newWebhookRouter(p WebhookProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterWebhookRoutes(r.Group("/webhooks"), p, payload.NewNormalizer("USD"), zap.NewNop().Sugar())
	return r
}

func TestReceiveWebhook_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"missing email", fmt.Errorf("normalize flat: %w", payload.ErrMissingEmail), http.StatusBadRequest},
		{"malformed", payload.ErrMalformedPayload, http.StatusBadRequest},
		{"in flight", webhook_log.ErrInFlight, http.StatusConflict},
		{"internal", fmt.Errorf("purchase transaction: boom"), http.StatusInternalServerError},
		{"nothing enrolled", fmt.Errorf("purchase of [main]: %w", wh.ErrNothingEnrolled), http.StatusInternalServerError},
		{"panic", fmt.Errorf("%w: boom", wh.ErrInternal), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{err: tt.err}
			r := newWebhookRouter(p)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/ClickFunnels", bytes.NewBufferString(`{"email":"a@b.co"}`))
			req.Header.Set("User-Agent", "cf-hook/1.0")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
			var ack response.WebhookAck
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
			require.Equal(t, tt.err == nil, ack.Success)
			require.Equal(t, "evt-1", ack.EventID)
			require.Equal(t, types.ProviderClickFunnels, p.provider)
			require.JSONEq(t, `{"email":"a@b.co"}`, string(p.raw))
			require.Equal(t, "cf-hook/1.0", p.meta.UserAgent)
			if tt.err != nil {
				require.NotEmpty(t, ack.Error)
			}
		})
	}
}

func TestReceiveWebhook_UnknownProvider(t *testing.T) {
	p := &fakeProcessor{}
	r := newWebhookRouter(p)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Nil(t, p.raw)
}

func TestDescribeWebhook(t *testing.T) {
	p := &fakeProcessor{}
	r := newWebhookRouter(p)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhooks/clickfunnels", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var d WebhookDescriptor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	require.Equal(t, "clickfunnels", d.Provider)
	require.Equal(t, []string{"nested", "contact_purchase", "flat"}, d.Shapes)
	require.Len(t, d.EventKinds, 2)
	require.Nil(t, p.raw)

	// the example must itself be accepted by the normalizer
	raw, err := json.Marshal(d.Example)
	require.NoError(t, err)
	ev, err := payload.NewNormalizer("USD").Normalize(raw, payload.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", ev.Email)
}

type adminEnv struct {
	router *gin.Engine
	proc   *fakeProcessor
	deps   AdminDeps
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	env := &adminEnv{proc: &fakeProcessor{}}
	env.deps = AdminDeps{
		AuditLog:   webhook_log.New(gdb, &config.Config{}, log),
		Processor:  env.proc,
		Bounces:    bounce.New(gdb, log),
		Statistics: statistics.New(gdb, log),
		Log:        log,
	}
	env.router = gin.New()
	RegisterAdminRoutes(env.router.Group("/api/v1/admin"), env.deps)

	b := &models.EmailBounce{
		ID: "0192f000-0000-7000-8000-000000000001", UserID: models.NoUserID, OriginalEmail: "jane@gmial.com",
		BounceType: "pre_purchase", BounceCount: 1, LastBouncedAt: time.Now(), Status: types.BounceStatusPending,
	}
	require.NoError(t, gdb.Create(b).Error)
	require.NoError(t, env.deps.AuditLog.Append(context.Background(), &models.WebhookEvent{
		ID: tool.GenerateUUIDV7(), Provider: "clickfunnels", EventType: "purchase", Status: models.WebhookEventStatusSent,
	}))
	return env
}

func (e *adminEnv) post(t *testing.T, path, body string) response.APIResponse[json.RawMessage] {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin"+path, bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, w.Code)
	var out response.APIResponse[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAdmin_ListEndpoints(t *testing.T) {
	env := newAdminEnv(t)

	res := env.post(t, "/list_webhook_events", `{"size":5}`)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	var events ListWebhookEventsData
	require.NoError(t, json.Unmarshal(res.Data, &events))
	require.EqualValues(t, 1, events.Total)

	res = env.post(t, "/list_email_bounces", `{"filters":[{"field":"status","operator":"eq","values":["pending"]}]}`)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	var bounces ListEmailBouncesData
	require.NoError(t, json.Unmarshal(res.Data, &bounces))
	require.Len(t, bounces.Items, 1)

	res = env.post(t, "/list_email_bounces", `{"filters":[{"field":"1=1; --","operator":"eq","values":["x"]}]}`)
	require.Equal(t, response.APIResponseCodeError, res.Code)

	res = env.post(t, "/get_webhook_statistic", `{"data_items":[{"id":"daily_webhook_count"},{"id":"open_bounce_count"}]}`)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
}

func TestAdmin_ResolveBounce(t *testing.T) {
	env := newAdminEnv(t)
	id := "0192f000-0000-7000-8000-000000000001"

	res := env.post(t, "/resolve_email_bounce", fmt.Sprintf(`{"id":%q,"status":"manual_fixed"}`, id))
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	res = env.post(t, "/resolve_email_bounce", fmt.Sprintf(`{"id":%q,"status":"manual_fixed","corrected_email":"jane@gmail.com","operator":"ops"}`, id))
	require.Equal(t, response.APIResponseCodeOK, res.Code)

	res = env.post(t, "/resolve_email_bounce", fmt.Sprintf(`{"id":%q,"status":"ignored"}`, id))
	require.Equal(t, response.APIResponseCodeConflict, res.Code)
}

func TestAdmin_Replay(t *testing.T) {
	env := newAdminEnv(t)

	res := env.post(t, "/replay_webhook_event", `{"event_id":"evt-1","force":true}`)
	require.Equal(t, response.APIResponseCodeOK, res.Code)
	require.Equal(t, "evt-1", env.proc.replayed)
	require.True(t, env.proc.force)

	res = env.post(t, "/replay_webhook_event", `{}`)
	require.Equal(t, response.APIResponseCodeBadRequest, res.Code)

	env.proc.err = fmt.Errorf("x: %w", webhook_log.ErrNotFound)
	res = env.post(t, "/replay_webhook_event", `{"event_id":"missing"}`)
	require.Equal(t, response.APIResponseCodeNotFound, res.Code)
}
