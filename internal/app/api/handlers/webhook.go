package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	wh "github.com/fatflowers/funnelhook/internal/app/service/webhook_handler"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_log"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/response"
	"github.com/fatflowers/funnelhook/pkg/types"
)

// maxWebhookBody bounds a single delivery.
const maxWebhookBody = 1 << 20

// WebhookProcessor runs deliveries through the enrollment pipeline.
type WebhookProcessor interface {
	Handle(ctx context.Context, provider types.Provider, raw []byte, meta payload.RequestMeta) (*wh.Result, error)
	Replay(ctx context.Context, eventID string, force bool) (*wh.Result, error)
}

// WebhookDescriptor documents what the endpoint accepts.
type WebhookDescriptor struct {
	Provider   string            `json:"provider"`
	Method     string            `json:"method"`
	EventKinds []types.EventKind `json:"event_kinds"`
	Shapes     []string          `json:"shapes"`
	Example    map[string]any    `json:"example"`
}

// webhookStatus maps pipeline errors to the status codes providers retry on.
func webhookStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, payload.ErrMissingEmail), errors.Is(err, payload.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, webhook_log.ErrInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toAck(res *wh.Result) *response.WebhookAck {
	if res == nil {
		return &response.WebhookAck{}
	}
	return &response.WebhookAck{
		Success:     res.Success,
		Duplicate:   res.Duplicate,
		EventID:     res.EventID,
		Kind:        string(res.Kind),
		CourseSlugs: res.CourseSlugs,
		Effects:     res.Effects,
		Error:       res.Error,
	}
}

// @Summary      Payment webhook
// @Description  Accepts a purchase or refund notification in any supported payload shape. 400 when no buyer email is found, 409 while the same transaction is being processed.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "Provider name" Enums(clickfunnels)
// @Param        payload body object true "Provider payload"
// @Success      200  {object}  response.WebhookAck
// @Failure      400  {object}  response.WebhookAck
// @Failure      409  {object}  response.WebhookAck
// @Failure      500  {object}  response.WebhookAck
// @Router       /webhooks/{provider} [post]
func ApiReceiveWebhook(p WebhookProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := types.Provider(strings.ToLower(c.Param("provider")))
		if !provider.Valid() {
			c.JSON(http.StatusNotFound, &response.WebhookAck{Error: "unknown provider"})
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, &response.WebhookAck{Error: err.Error()})
			return
		}

		meta := payload.RequestMeta{ClientIP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		res, err := p.Handle(c.Request.Context(), provider, raw, meta)
		status := webhookStatus(err)
		if status >= http.StatusInternalServerError {
			logctx.FromGin(c, log).Errorf("webhook failed: provider=%s err=%v", provider, err)
		}
		ack := toAck(res)
		if err != nil && ack.Error == "" {
			ack.Error = err.Error()
		}
		c.JSON(status, ack)
	}
}

// @Summary      Webhook descriptor
// @Description  Describes the accepted payloads. Has no side effects.
// @Tags         Webhook
// @Produce      json
// @Param        provider path string true "Provider name" Enums(clickfunnels)
// @Success      200  {object}  handlers.WebhookDescriptor
// @Router       /webhooks/{provider} [get]
func ApiDescribeWebhook(n *payload.Normalizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := types.Provider(strings.ToLower(c.Param("provider")))
		if !provider.Valid() {
			c.JSON(http.StatusNotFound, &response.WebhookAck{Error: "unknown provider"})
			return
		}
		c.JSON(http.StatusOK, &WebhookDescriptor{
			Provider:   string(provider),
			Method:     http.MethodPost,
			EventKinds: []types.EventKind{types.EventKindPurchase, types.EventKindRefund},
			Shapes:     n.Shapes(),
			Example: map[string]any{
				"event":   "purchase",
				"contact": map[string]any{"email": "jane@example.com", "first_name": "Jane", "last_name": "Doe"},
				"purchase": map[string]any{
					"transaction_id": "T-1001",
					"product_id":     "fm-mini-diploma",
					"amount":         27,
					"currency":       "USD",
				},
			},
		})
	}
}

func RegisterWebhookRoutes(r gin.IRouter, p WebhookProcessor, n *payload.Normalizer, log *zap.SugaredLogger) {
	r.POST("/:provider", ApiReceiveWebhook(p, log))
	r.GET("/:provider", ApiDescribeWebhook(n))
}
