package types

import "github.com/shopspring/decimal"

// Product describes one purchasable SKU of the funnel and the courses it grants.
// Courses accepts either a single slug or a list (bundle) in YAML.
type Product struct {
	ID       string          `json:"id" mapstructure:"id" validate:"required"`
	Name     string          `json:"name" mapstructure:"name"`
	Courses  []string        `json:"courses" mapstructure:"courses" validate:"required,min=1,dive,required"`
	Price    decimal.Decimal `json:"price" mapstructure:"price"`
	Currency string          `json:"currency" mapstructure:"currency"`
	// SupersedesPreview marks products bought after a preview funnel step; the
	// preview lesson is auto-completed on enrollment.
	SupersedesPreview bool `json:"supersedes_preview" mapstructure:"supersedes_preview"`
}

// KeywordRule maps a case-insensitive product name fragment to courses.
type KeywordRule struct {
	Keyword   string   `json:"keyword" mapstructure:"keyword" validate:"required"`
	Courses   []string `json:"courses" mapstructure:"courses" validate:"required,min=1,dive,required"`
	ProductID string   `json:"product_id" mapstructure:"product_id"`
}

type Catalog struct {
	DefaultCourse  string        `json:"default_course" mapstructure:"default_course" validate:"required"`
	FlagshipCourse string        `json:"flagship_course" mapstructure:"flagship_course"`
	PreviewCourses []string      `json:"preview_courses" mapstructure:"preview_courses"`
	PreviewLesson  string        `json:"preview_lesson" mapstructure:"preview_lesson"`
	Products       []*Product    `json:"products" mapstructure:"products" validate:"dive"`
	Keywords       []KeywordRule `json:"keywords" mapstructure:"keywords" validate:"dive"`
}
