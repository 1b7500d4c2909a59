// Package verifier talks to the email-deliverability verification API.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
)

// Result is one verification verdict.
type Result struct {
	Email      string `json:"email"`
	IsValid    bool   `json:"is_valid"`
	ResultCode string `json:"result_code"`
	Reason     string `json:"reason"`
	// DidYouMean is the provider's own correction, if any.
	DidYouMean string `json:"did_you_mean,omitempty"`
}

// Verifier checks whether an address can receive mail.
type Verifier interface {
	Verify(ctx context.Context, email string) (*Result, error)
}

// statuses that mean the address must not be mailed
var undeliverable = map[string]bool{
	"invalid":     true,
	"spamtrap":    true,
	"abuse":       true,
	"do_not_mail": true,
}

// HTTPVerifier calls a ZeroBounce-style GET /validate endpoint.
type HTTPVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPVerifier(baseURL, apiKey string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type validateResponse struct {
	Address    string `json:"address"`
	Status     string `json:"status"`
	SubStatus  string `json:"sub_status"`
	DidYouMean string `json:"did_you_mean"`
	Error      string `json:"error"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, email string) (*Result, error) {
	q := url.Values{}
	q.Set("api_key", v.apiKey)
	q.Set("email", email)
	q.Set("ip_address", "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/validate?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var vr validateResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if vr.Error != "" {
		return nil, fmt.Errorf("verify api error: %s", vr.Error)
	}
	status := strings.ToLower(strings.TrimSpace(vr.Status))
	if status == "" {
		return nil, fmt.Errorf("verify api returned no status")
	}
	return &Result{
		Email:      email,
		IsValid:    !undeliverable[status],
		ResultCode: status,
		Reason:     vr.SubStatus,
		DidYouMean: strings.ToLower(strings.TrimSpace(vr.DidYouMean)),
	}, nil
}

// NopVerifier accepts every address; used when no API key is configured.
type NopVerifier struct{}

func (NopVerifier) Verify(_ context.Context, email string) (*Result, error) {
	return &Result{Email: email, IsValid: true, ResultCode: "unchecked"}, nil
}

// New picks the HTTP verifier when an API key is configured.
func New(cfg *config.Config, log *zap.SugaredLogger) Verifier {
	if cfg.Verifier.APIKey == "" {
		log.Infow("email verifier disabled, no api key configured")
		return NopVerifier{}
	}
	return NewHTTPVerifier(cfg.Verifier.BaseURL, cfg.Verifier.APIKey, cfg.Timeouts.Verify)
}
