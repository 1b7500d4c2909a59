package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// SHA256Hex hashes s after trimming and lower-casing it. Blank input hashes
// to "" so callers can omit the field.
func SHA256Hex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DigitsOnly strips everything but digits, the canonical phone form before hashing.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
