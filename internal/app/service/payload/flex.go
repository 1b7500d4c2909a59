package payload

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// flexString accepts JSON strings, numbers and booleans; ids arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		// structured values are not ids; leave empty instead of failing the shape
		*f = ""
		return nil
	}
	*f = flexString(string(b))
	return nil
}

func (f flexString) String() string { return string(f) }

// flexAmount accepts 27, 27.5, "27.00", "$1,027.00" and null.
type flexAmount struct {
	decimal.Decimal
	Set bool
}

func (f *flexAmount) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	raw := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, string(s))
	if raw == "" {
		*f = flexAmount{}
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		// unparsable amounts fall back to the catalog price downstream
		*f = flexAmount{}
		return nil
	}
	*f = flexAmount{Decimal: d, Set: true}
	return nil
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func firstAmount(values ...flexAmount) flexAmount {
	for _, v := range values {
		if v.Set {
			return v
		}
	}
	return flexAmount{}
}
