package types

// ScanRequest is the admin list request shared by every scan endpoint.
type ScanRequest struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

const (
	DefaultScanSize = 10
	MaxScanSize     = 500
)

// Normalize clamps pagination into sane bounds.
func (r *ScanRequest) Normalize() {
	if r.Size <= 0 {
		r.Size = DefaultScanSize
	}
	if r.Size > MaxScanSize {
		r.Size = MaxScanSize
	}
	if r.From < 0 {
		r.From = 0
	}
}

type ScanResponse[T any] struct {
	Items []*T  `json:"items"`
	Total int64 `json:"total"`
}
