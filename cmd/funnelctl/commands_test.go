package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/app/service/enrollment"
	"github.com/fatflowers/funnelhook/internal/app/service/side_effect"
	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db/dbtest"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

const testConfig = `
catalog:
  default_course: main
  products:
    - id: fm-mini-diploma
      courses: [fm-mini-diploma]
    - id: pro-bundle
      courses: [certification, business]
  keywords:
    - keyword: certification
      courses: [certification]
`

func TestCatalogResolveCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))
	t.Setenv("APP_CONFIG_FILE", path)

	tests := []struct {
		args   []string
		slugs  []string
		source catalog.ResolutionSource
	}{
		{[]string{"--product", "PRO-BUNDLE"}, []string{"certification", "business"}, catalog.SourceProduct},
		{[]string{"--name", "Holistic Certification Program"}, []string{"certification"}, catalog.SourceKeyword},
		{[]string{"--name", "Spring Sale"}, []string{"main"}, catalog.SourceDefault},
	}
	for _, tt := range tests {
		cmd := catalogResolveCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(tt.args)
		require.NoError(t, cmd.Execute())

		var res catalog.Resolution
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
		require.Equal(t, tt.slugs, res.Slugs, tt.args)
		require.Equal(t, tt.source, res.Source, tt.args)
	}
}

func TestBounceListRequest(t *testing.T) {
	req := bounceListRequest("pending", 20)
	require.Equal(t, 20, req.Size)
	require.Len(t, req.Filters, 1)
	require.Equal(t, "status", req.Filters[0].Field)
	require.Equal(t, types.CommonFilterOperatorEq, req.Filters[0].Operator)

	require.Empty(t, bounceListRequest("", 0).Filters)
}

func TestRootCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range []interface{ Name() string }{replayCmd(), bouncesCmd(), catalogCmd(), userCmd()} {
		names[c.Name()] = true
	}
	require.Equal(t, map[string]bool{"replay": true, "bounces": true, "catalog": true, "user": true}, names)
}

func TestLookupUser(t *testing.T) {
	gdb := dbtest.New(t)
	ctx := context.Background()
	courses := dbtest.SeedCourses(t, gdb, "fm-mini-diploma")
	u := &models.User{ID: tool.GenerateUUIDV7(), Email: "jane@x.com", PasswordHash: "secret", Role: "student"}
	require.NoError(t, gdb.Create(u).Error)
	require.NoError(t, gdb.Create(&models.Enrollment{
		ID: tool.GenerateUUIDV7(), UserID: u.ID, CourseID: courses["fm-mini-diploma"].ID, Status: types.EnrollmentStatusActive,
	}).Error)
	require.NoError(t, side_effect.AddTags(ctx, gdb, u.ID, "welcome_email_sent", "fm-mini-diploma_purchased"))

	o := enrollment.NewOrchestrator(nil, zap.NewNop().Sugar())
	v, err := lookupUser(ctx, gdb, o, " JANE@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, v.User.ID)
	require.Len(t, v.Enrollments, 1)
	require.Equal(t, "fm-mini-diploma", v.Enrollments[0].Course.Slug)
	require.Equal(t, []string{"fm-mini-diploma_purchased", "welcome_email_sent"}, v.Tags)

	var out bytes.Buffer
	require.NoError(t, printJSON(&out, v))
	require.NotContains(t, out.String(), "secret")

	_, err = lookupUser(ctx, gdb, o, "ghost@x.com")
	require.Error(t, err)
}
