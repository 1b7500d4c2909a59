package handlers

import (
	"github.com/fatflowers/funnelhook/internal/app/service/bounce"
	"github.com/fatflowers/funnelhook/internal/app/service/statistics"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// ListWebhookEventsData documents types.ScanResponse[models.WebhookEvent].
type ListWebhookEventsData struct {
	Items []*models.WebhookEvent `json:"items"`
	Total int64                  `json:"total"`
}

type RespListWebhookEvents struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListWebhookEventsData    `json:"data"`
}

type RespReplayWebhookEvent struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    response.WebhookAck      `json:"data"`
}

// ListEmailBouncesData documents types.ScanResponse[models.EmailBounce].
type ListEmailBouncesData struct {
	Items []*models.EmailBounce `json:"items"`
	Total int64                 `json:"total"`
}

type RespListEmailBounces struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListEmailBouncesData     `json:"data"`
}

type RespResolveEmailBounce struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    bounce.ResolveResult     `json:"data"`
}

type RespWebhookStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}
