// Package conversion reports purchases to the ad platform's conversions API.
package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
)

// UserData holds SHA-256 hashed identity fields; blank fields are omitted.
type UserData struct {
	Email      []string `json:"em,omitempty"`
	Phone      []string `json:"ph,omitempty"`
	FirstName  []string `json:"fn,omitempty"`
	LastName   []string `json:"ln,omitempty"`
	ExternalID []string `json:"external_id,omitempty"`
	ClientIP   string   `json:"client_ip_address,omitempty"`
	UserAgent  string   `json:"client_user_agent,omitempty"`
}

type CustomData struct {
	Value       float64  `json:"value"`
	Currency    string   `json:"currency"`
	ContentName string   `json:"content_name,omitempty"`
	ContentIDs  []string `json:"content_ids,omitempty"`
	OrderID     string   `json:"order_id,omitempty"`
}

// NewCustomData converts a money amount to the API's JSON number.
func NewCustomData(value decimal.Decimal, currency string) CustomData {
	return CustomData{Value: value.Round(2).InexactFloat64(), Currency: currency}
}

// Event is one server-side conversion. EventID is the downstream
// deduplication key.
type Event struct {
	EventName    string     `json:"event_name"`
	EventTime    int64      `json:"event_time"`
	EventID      string     `json:"event_id"`
	ActionSource string     `json:"action_source"`
	UserData     UserData   `json:"user_data"`
	CustomData   CustomData `json:"custom_data"`
}

type Reporter interface {
	Report(ctx context.Context, ev *Event) error
}

// HTTPReporter posts events to {base}/{pixel}/events.
type HTTPReporter struct {
	baseURL       string
	pixelID       string
	accessToken   string
	testEventCode string
	client        *http.Client
}

func NewHTTPReporter(cfg config.ConversionConfig, timeout time.Duration) *HTTPReporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPReporter{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		pixelID:       cfg.PixelID,
		accessToken:   cfg.AccessToken,
		testEventCode: cfg.TestEventCode,
		client:        &http.Client{Timeout: timeout},
	}
}

type eventsRequest struct {
	Data          []*Event `json:"data"`
	AccessToken   string   `json:"access_token"`
	TestEventCode string   `json:"test_event_code,omitempty"`
}

type eventsResponse struct {
	EventsReceived int `json:"events_received"`
	Error          *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (r *HTTPReporter) Report(ctx context.Context, ev *Event) error {
	body, err := json.Marshal(&eventsRequest{Data: []*Event{ev}, AccessToken: r.accessToken, TestEventCode: r.testEventCode})
	if err != nil {
		return fmt.Errorf("encode conversion event: %w", err)
	}
	url := fmt.Sprintf("%s/%s/events", r.baseURL, r.pixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build conversion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("conversion request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var er eventsResponse
	_ = json.Unmarshal(raw, &er)
	if resp.StatusCode != http.StatusOK || er.Error != nil {
		msg := strings.TrimSpace(string(raw))
		if er.Error != nil {
			msg = er.Error.Message
		}
		return fmt.Errorf("conversion api status %d: %s", resp.StatusCode, msg)
	}
	if er.EventsReceived < 1 {
		return fmt.Errorf("conversion api accepted no events")
	}
	return nil
}

// NopReporter drops events; used when no pixel is configured.
type NopReporter struct{}

func (NopReporter) Report(context.Context, *Event) error { return nil }

func New(cfg *config.Config, log *zap.SugaredLogger) Reporter {
	if cfg.Conversion.PixelID == "" || cfg.Conversion.AccessToken == "" {
		log.Infow("conversion reporting disabled, pixel not configured")
		return NopReporter{}
	}
	return NewHTTPReporter(cfg.Conversion, cfg.Timeouts.Conversion)
}
