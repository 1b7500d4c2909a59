package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db/dbtest"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

func seedEvent(t *testing.T, gdb *gorm.DB, kind string, status models.WebhookEventStatus, duplicate bool, derived string) {
	t.Helper()
	ev := &models.WebhookEvent{
		ID:        tool.GenerateUUIDV7(),
		Provider:  string(types.ProviderClickFunnels),
		EventType: kind,
		Status:    status,
		Duplicate: duplicate,
		Payload:   datatypes.JSON(`{}`),
		Derived:   datatypes.JSON(derived),
	}
	require.NoError(t, gdb.Create(ev).Error)
}

func TestGetStatistic(t *testing.T) {
	gdb := dbtest.New(t)
	svc := New(gdb, zap.NewNop().Sugar())

	usd27 := `{"event":{"amount":"27","currency":"USD"}}`
	seedEvent(t, gdb, "purchase", models.WebhookEventStatusSent, false, usd27)
	seedEvent(t, gdb, "purchase", models.WebhookEventStatusSent, true, usd27)
	seedEvent(t, gdb, "purchase", models.WebhookEventStatusSent, false, `{"event":{"amount":"97.5","currency":"USD"}}`)
	seedEvent(t, gdb, "purchase", models.WebhookEventStatusSent, false, `{"event":{"amount":"10","currency":"EUR"}}`)
	seedEvent(t, gdb, "purchase", models.WebhookEventStatusFailed, false, usd27)
	seedEvent(t, gdb, models.WebhookEventTypeInvalid, models.WebhookEventStatusFailed, false, `{}`)

	courses := dbtest.SeedCourses(t, gdb, "main", "fm-mini-diploma")
	u := &models.User{ID: tool.GenerateUUIDV7(), Email: "a@b.co", PasswordHash: "x", Role: "student"}
	require.NoError(t, gdb.Create(u).Error)
	for slug, status := range map[string]types.EnrollmentStatus{"main": types.EnrollmentStatusActive, "fm-mini-diploma": types.EnrollmentStatusCompleted} {
		require.NoError(t, gdb.Create(&models.Enrollment{
			ID: tool.GenerateUUIDV7(), UserID: u.ID, CourseID: courses[slug].ID, Status: status,
		}).Error)
	}

	res, err := svc.GetStatistic(context.Background(), &StatisticRequest{
		DataItems: []*StatisticDataItem{
			{ID: StatisticTypeDailyWebhookCount},
			{ID: StatisticTypeDailyGmv},
			{ID: StatisticTypeDailyNewUserCount},
			{ID: StatisticTypeEnrollmentCount},
			{ID: StatisticTypeOpenBounceCount},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.DataItems, 5)

	today := time.Now().UTC().Format(time.DateOnly)
	gmv := lo.SliceToMap(res.DataItems[StatisticTypeDailyGmv], func(it StatisticResponseDataItem) (string, float64) {
		return it.Label, it.Value
	})
	require.InDelta(t, 124.5, gmv["USD"], 0.001)
	require.InDelta(t, 10, gmv["EUR"], 0.001)

	counts := res.DataItems[StatisticTypeDailyWebhookCount]
	total := lo.SumBy(counts, func(it StatisticResponseDataItem) float64 { return it.Value })
	require.EqualValues(t, 6, total)
	sent, ok := lo.Find(counts, func(it StatisticResponseDataItem) bool {
		return it.Label == "purchase" && it.Status == string(models.WebhookEventStatusSent)
	})
	require.True(t, ok)
	require.EqualValues(t, 4, sent.Value)
	require.Equal(t, today, sent.Date)

	require.Equal(t, []StatisticResponseDataItem{
		{Label: "fm-mini-diploma", Status: string(types.EnrollmentStatusCompleted), Value: 1},
		{Label: "main", Status: string(types.EnrollmentStatusActive), Value: 1},
	}, res.DataItems[StatisticTypeEnrollmentCount])
	require.Empty(t, res.DataItems[StatisticTypeOpenBounceCount])
}

func TestGetStatistic_Filters(t *testing.T) {
	gdb := dbtest.New(t)
	svc := New(gdb, zap.NewNop().Sugar())
	seedEvent(t, gdb, "purchase", models.WebhookEventStatusSent, false, `{"event":{"amount":"27","currency":"USD"}}`)

	res, err := svc.GetStatistic(context.Background(), &StatisticRequest{
		Filters: []*types.CommonFilter{{Field: "provider", Operator: types.CommonFilterOperatorEq, Values: []any{"other"}}},
		DataItems: []*StatisticDataItem{
			{ID: StatisticTypeDailyGmv},
			{ID: StatisticTypeEnrollmentCount},
		},
	})
	require.NoError(t, err)
	require.Empty(t, res.DataItems[StatisticTypeDailyGmv])

	_, err = svc.GetStatistic(context.Background(), &StatisticRequest{
		Filters:   []*types.CommonFilter{{Field: "email", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
		DataItems: []*StatisticDataItem{{ID: StatisticTypeDailyGmv}},
	})
	require.Error(t, err)

	_, err = svc.GetStatistic(context.Background(), &StatisticRequest{
		DataItems: []*StatisticDataItem{{ID: "nope"}},
	})
	require.Error(t, err)
}
