package payload

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/funnelhook/pkg/types"
)

var (
	// ErrMissingEmail means no known payload shape carried a buyer email.
	ErrMissingEmail = errors.New("payload: buyer email not found in any known shape")
	// ErrMalformedPayload means the body is not a JSON object.
	ErrMalformedPayload = errors.New("payload: body is not a JSON object")
)

// RequestMeta is what the HTTP layer knows about the delivery itself.
type RequestMeta struct {
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Event is the canonical purchase or refund derived from a webhook body.
type Event struct {
	Kind          types.EventKind `json:"kind" validate:"oneof=purchase refund"`
	Email         string          `json:"email" validate:"required"`
	FirstName     string          `json:"first_name,omitempty"`
	LastName      string          `json:"last_name,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	ProductID     string          `json:"product_id,omitempty"`
	ProductName   string          `json:"product_name,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"len=3,alpha"`
	ClientIP      string          `json:"client_ip,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	// Shape names the payload variant that matched.
	Shape string `json:"shape"`
}

// HasAmount reports whether the payload carried a positive amount.
func (e *Event) HasAmount() bool {
	return e != nil && e.Amount.IsPositive()
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// splitName splits "Jane Q Doe" into "Jane" and "Q Doe".
func splitName(full string) (string, string) {
	full = strings.Join(strings.Fields(full), " ")
	if full == "" {
		return "", ""
	}
	first, last, _ := strings.Cut(full, " ")
	return first, last
}

func kindFrom(values ...string) types.EventKind {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), "refund") {
			return types.EventKindRefund
		}
	}
	return types.EventKindPurchase
}
