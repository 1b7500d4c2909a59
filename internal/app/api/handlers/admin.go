package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/internal/app/service/bounce"
	"github.com/fatflowers/funnelhook/internal/app/service/statistics"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_log"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/response"
	"github.com/fatflowers/funnelhook/pkg/types"
)

type ReplayWebhookEventRequest struct {
	EventID string `json:"event_id" binding:"required"`
	// Force skips deduplication. Enrollment and fenced side effects stay idempotent.
	Force bool `json:"force"`
}

// adminErrorCode maps service errors to the envelope code.
func adminErrorCode(err error) response.APIResponseCode {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, webhook_log.ErrNotFound), errors.Is(err, bounce.ErrNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, bounce.ErrInvalidTransition), errors.Is(err, webhook_log.ErrInFlight):
		return response.APIResponseCodeConflict
	case errors.Is(err, bounce.ErrEmailRequired), errors.As(err, &verr):
		return response.APIResponseCodeBadRequest
	default:
		return response.APIResponseCodeError
	}
}

// @Summary      List Webhook Events (Admin)
// @Description  Retrieves a paginated and filterable list of the webhook audit log.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListWebhookEvents
// @Router       /api/v1/admin/list_webhook_events [post]
func ApiListWebhookEvents(audit *webhook_log.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := audit.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Replay Webhook Event (Admin)
// @Description  Re-feeds a stored delivery through the pipeline. Without force an already processed transaction is reported as duplicate.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.ReplayWebhookEventRequest true "Replay request"
// @Success      200  {object}  handlers.RespReplayWebhookEvent
// @Router       /api/v1/admin/replay_webhook_event [post]
func ApiReplayWebhookEvent(p WebhookProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReplayWebhookEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := p.Replay(c.Request.Context(), req.EventID, req.Force)
		if err != nil {
			logctx.FromGin(c, log).Warnw("webhook_replay_failed", "event_id", req.EventID, "err", err)
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(toAck(res)))
	}
}

// @Summary      List Email Bounces (Admin)
// @Description  Retrieves deliverability failures recorded at checkout.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body types.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListEmailBounces
// @Router       /api/v1/admin/list_email_bounces [post]
func ApiListEmailBounces(svc *bounce.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.List(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Resolve Email Bounce (Admin)
// @Description  Moves an open bounce to auto_fixed, manual_fixed or ignored. Fixed statuses require corrected_email.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body bounce.ResolveRequest true "Resolve request"
// @Success      200  {object}  handlers.RespResolveEmailBounce
// @Router       /api/v1/admin/resolve_email_bounce [post]
func ApiResolveEmailBounce(svc *bounce.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bounce.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Resolve(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Webhook Statistics (Admin)
// @Description  Daily webhook counts, purchase GMV per currency, enrollment counts per course.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespWebhookStatistic
// @Router       /api/v1/admin/get_webhook_statistic [post]
func ApiGetWebhookStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type AdminDeps struct {
	AuditLog   *webhook_log.Service
	Processor  WebhookProcessor
	Bounces    *bounce.Service
	Statistics *statistics.Service
	Log        *zap.SugaredLogger
}

func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.POST("/list_webhook_events", ApiListWebhookEvents(d.AuditLog))
	r.POST("/replay_webhook_event", ApiReplayWebhookEvent(d.Processor, d.Log))
	r.POST("/list_email_bounces", ApiListEmailBounces(d.Bounces))
	r.POST("/resolve_email_bounce", ApiResolveEmailBounce(d.Bounces))
	r.POST("/get_webhook_statistic", ApiGetWebhookStatistic(d.Statistics))
}
