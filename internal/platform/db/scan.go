package db

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/pkg/types"
)

// Scan runs a filtered, paginated admin listing of T. Filter and sort columns
// must be in allowed; the default order is newest first.
func Scan[T any](ctx context.Context, gdb *gorm.DB, req *types.ScanRequest, allowed ...string) (*types.ScanResponse[T], error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	req.Normalize()
	if err := types.AllowFields(req.Filters, allowed...); err != nil {
		return nil, err
	}
	if req.SortBy != "" && !lo.Contains(allowed, req.SortBy) {
		return nil, fmt.Errorf("sort field not allowed: %q", req.SortBy)
	}

	var model T
	tx := gdb.WithContext(ctx).Model(&model)
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*T
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return &types.ScanResponse[T]{Items: rows, Total: total}, nil
}
