package deliverability

import (
	"strings"
)

// Suggestion is a proposed correction for an undeliverable address.
type Suggestion struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type Suggester interface {
	// Suggest returns nil when no plausible correction exists.
	Suggest(email string) *Suggestion
}

const (
	SuggestionSourceVerifier     = "verifier"
	SuggestionSourceDomainTypo   = "domain_typo"
	SuggestionSourceTLDTypo      = "tld_typo"
	SuggestionSourceEditDistance = "edit_distance"
)

var domainTypos = map[string]string{
	"gmial.com":   "gmail.com",
	"gmai.com":    "gmail.com",
	"gamil.com":   "gmail.com",
	"gmaill.com":  "gmail.com",
	"gnail.com":   "gmail.com",
	"gmail.co":    "gmail.com",
	"yahooo.com":  "yahoo.com",
	"yaho.com":    "yahoo.com",
	"yhoo.com":    "yahoo.com",
	"hotmial.com": "hotmail.com",
	"hotmal.com":  "hotmail.com",
	"hotmai.com":  "hotmail.com",
	"outlok.com":  "outlook.com",
	"outloo.com":  "outlook.com",
	"iclod.com":   "icloud.com",
	"icoud.com":   "icloud.com",
	"aol.co":      "aol.com",
}

var tldTypos = map[string]string{
	"con":  "com",
	"cmo":  "com",
	"ocm":  "com",
	"vom":  "com",
	"xom":  "com",
	"comm": "com",
	"nte":  "net",
	"ner":  "net",
	"ogr":  "org",
	"orgg": "org",
}

var commonDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "icloud.com",
	"aol.com", "live.com", "msn.com", "me.com", "comcast.net",
	"protonmail.com", "ymail.com", "googlemail.com",
}

// DomainSuggester fixes the domain part with a typo table, TLD fixes and an
// edit-distance match against common mailbox providers, in that order.
type DomainSuggester struct {
	maxDistance int
}

func NewSuggester() *DomainSuggester {
	return &DomainSuggester{maxDistance: 2}
}

func (s *DomainSuggester) Suggest(email string) *Suggestion {
	local, domain, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return nil
	}

	if fixed, ok := domainTypos[domain]; ok {
		return &Suggestion{Email: local + "@" + fixed, Confidence: 0.95, Source: SuggestionSourceDomainTypo}
	}

	if i := strings.LastIndex(domain, "."); i > 0 {
		if tld, ok := tldTypos[domain[i+1:]]; ok {
			fixed := domain[:i+1] + tld
			if sub, ok := domainTypos[fixed]; ok {
				fixed = sub
			}
			return &Suggestion{Email: local + "@" + fixed, Confidence: 0.9, Source: SuggestionSourceTLDTypo}
		}
	}

	best, bestDist := "", s.maxDistance+1
	for _, d := range commonDomains {
		if d == domain {
			return nil
		}
		if dist := levenshtein(domain, d); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	if best == "" {
		return nil
	}
	confidence := 1 - float64(bestDist)/float64(max(len(best), len(domain)))
	return &Suggestion{Email: local + "@" + best, Confidence: round2(confidence * 0.9), Source: SuggestionSourceEditDistance}
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
