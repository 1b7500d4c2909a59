package side_effect

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/tool"
)

// HasTag reports whether the user carries tag.
func HasTag(ctx context.Context, db *gorm.DB, userID, tag string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&models.UserTag{}).
		Where("user_id = ? AND tag = ?", userID, tag).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check tag %s: %w", tag, err)
	}
	return n > 0, nil
}

// AddTags inserts tags, ignoring ones the user already has.
func AddTags(ctx context.Context, db *gorm.DB, userID string, tags ...string) error {
	tags = lo.Uniq(lo.Compact(tags))
	if len(tags) == 0 {
		return nil
	}
	rows := lo.Map(tags, func(tag string, _ int) *models.UserTag {
		return &models.UserTag{ID: tool.GenerateUUIDV7(), UserID: userID, Tag: tag}
	})
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "tag"}}, DoNothing: true}).
		Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to add tags: %w", err)
	}
	return nil
}

// ListTags returns the user's tags.
func ListTags(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var tags []string
	if err := db.WithContext(ctx).Model(&models.UserTag{}).Where("user_id = ?", userID).Order("tag").Pluck("tag", &tags).Error; err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}
