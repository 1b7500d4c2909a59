package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Normalizer turns raw webhook bodies into Events. It has no side effects.
type Normalizer struct {
	shapes          []Shape
	defaultCurrency string
	validate        *validator.Validate
}

func NewNormalizer(defaultCurrency string) *Normalizer {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Normalizer{
		shapes:          DefaultShapes(),
		defaultCurrency: strings.ToUpper(defaultCurrency),
		validate:        validator.New(),
	}
}

// Shapes lists the variant names in priority order.
func (n *Normalizer) Shapes() []string {
	names := make([]string, 0, len(n.shapes))
	for _, s := range n.shapes {
		names = append(names, s.Name())
	}
	return names
}

// Normalize tries each shape in order; the first one yielding an email wins.
func (n *Normalizer) Normalize(raw []byte, meta RequestMeta) (*Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return nil, ErrMalformedPayload
	}

	var ev *Event
	for _, s := range n.shapes {
		if decoded, ok := s.Decode(raw); ok {
			ev = decoded
			break
		}
	}
	if ev == nil {
		return nil, fmt.Errorf("normalize %d shapes: %w", len(n.shapes), ErrMissingEmail)
	}

	ev.Email = NormalizeEmail(ev.Email)
	ev.Currency = strings.ToUpper(strings.TrimSpace(ev.Currency))
	if n.validate.Var(ev.Currency, "len=3,alpha") != nil {
		ev.Currency = n.defaultCurrency
	}
	if ev.Amount.IsNegative() {
		ev.Amount = ev.Amount.Neg()
	}
	// payload-carried buyer metadata wins over the delivering server's
	if ev.ClientIP == "" {
		ev.ClientIP = meta.ClientIP
	}
	if ev.UserAgent == "" {
		ev.UserAgent = meta.UserAgent
	}
	if err := n.validate.Struct(ev); err != nil {
		if ev.Email == "" {
			return nil, fmt.Errorf("normalize %s: %w", ev.Shape, ErrMissingEmail)
		}
		return nil, fmt.Errorf("normalize %s: %w", ev.Shape, err)
	}
	return ev, nil
}

// WellFormedEmail reports whether the address passes syntax validation. The
// pipeline still accepts malformed addresses; the deliverability gate decides.
func (n *Normalizer) WellFormedEmail(email string) bool {
	return n.validate.Var(email, "required,email") == nil
}
