package catalog

import (
	"strings"

	"github.com/samber/lo"

	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/types"
)

// ResolutionSource tells which table produced a Resolution.
type ResolutionSource string

const (
	SourceProduct ResolutionSource = "product"
	SourceKeyword ResolutionSource = "keyword"
	SourceDefault ResolutionSource = "default"
)

// Resolution is the ordered, de-duplicated list of course slugs for a purchase.
type Resolution struct {
	Slugs  []string         `json:"slugs"`
	Source ResolutionSource `json:"source"`
	// Product is the matched catalog entry, nil for the default fallback.
	Product *types.Product `json:"product,omitempty"`
}

// Mapper resolves purchased products to courses from the configured catalog.
type Mapper struct {
	catalog  types.Catalog
	products map[string]*types.Product
}

func NewMapper(cfg *config.Config) *Mapper {
	return NewMapperFromCatalog(cfg.Catalog)
}

func NewMapperFromCatalog(c types.Catalog) *Mapper {
	m := &Mapper{catalog: c, products: make(map[string]*types.Product, len(c.Products))}
	for _, p := range c.Products {
		key := strings.ToLower(strings.TrimSpace(p.ID))
		if _, ok := m.products[key]; !ok {
			m.products[key] = p
		}
	}
	return m
}

// Resolve never returns an empty list: unknown products map to the default course.
func (m *Mapper) Resolve(productID, productName string) Resolution {
	if p := m.lookup(productID); p != nil {
		return Resolution{Slugs: dedupe(p.Courses), Source: SourceProduct, Product: p}
	}

	// keyword rules are ordered; the first configured keyword that matches wins
	haystacks := lo.Filter([]string{strings.ToLower(productName), strings.ToLower(productID)}, func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})
	for _, rule := range m.catalog.Keywords {
		kw := strings.ToLower(strings.TrimSpace(rule.Keyword))
		if kw == "" {
			continue
		}
		if lo.SomeBy(haystacks, func(h string) bool { return strings.Contains(h, kw) }) {
			return Resolution{Slugs: dedupe(rule.Courses), Source: SourceKeyword, Product: m.lookup(rule.ProductID)}
		}
	}

	return Resolution{Slugs: []string{m.catalog.DefaultCourse}, Source: SourceDefault}
}

// Product returns the catalog entry for pricing and display fallbacks.
func (m *Mapper) Product(productID, productName string) *types.Product {
	return m.Resolve(productID, productName).Product
}

func (m *Mapper) lookup(productID string) *types.Product {
	key := strings.ToLower(strings.TrimSpace(productID))
	if key == "" {
		return nil
	}
	return m.products[key]
}

// IsFlagship reports whether slug is the course whose purchase upgrades previews.
func (m *Mapper) IsFlagship(slug string) bool {
	return m.catalog.FlagshipCourse != "" && slug == m.catalog.FlagshipCourse
}

// PreviewCourses lists the preview-tier slugs completed by a flagship purchase.
func (m *Mapper) PreviewCourses() []string {
	return m.catalog.PreviewCourses
}

// PreviewLesson is the lesson key auto-completed for products that supersede
// a preview funnel step.
func (m *Mapper) PreviewLesson() string {
	return m.catalog.PreviewLesson
}

func dedupe(slugs []string) []string {
	out := lo.Uniq(lo.FilterMap(slugs, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	}))
	return out
}
