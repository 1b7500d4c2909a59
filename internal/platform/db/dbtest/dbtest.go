// Package dbtest opens a migrated in-memory SQLite database for service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db"
	"github.com/fatflowers/funnelhook/pkg/tool"
)

// New returns a fresh database private to t.
func New(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// a single connection keeps the shared in-memory db alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(db.Models...))
	return gdb
}

// SeedCourses inserts one course per slug and returns them keyed by slug.
func SeedCourses(t *testing.T, gdb *gorm.DB, slugs ...string) map[string]*models.Course {
	t.Helper()
	out := make(map[string]*models.Course, len(slugs))
	for _, slug := range slugs {
		c := &models.Course{ID: tool.GenerateUUIDV7(), Slug: slug, Title: slug}
		require.NoError(t, gdb.Create(c).Error)
		out[slug] = c
	}
	return out
}
