package statistics

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/types"
)

type StatisticType string

const (
	StatisticTypeDailyWebhookCount StatisticType = "daily_webhook_count"
	StatisticTypeDailyGmv          StatisticType = "daily_gmv"
	StatisticTypeDailyNewUserCount StatisticType = "daily_new_user_count"
	StatisticTypeEnrollmentCount   StatisticType = "enrollment_count"
	StatisticTypeOpenBounceCount   StatisticType = "open_bounce_count"
)

// FilterField is a request filter column; each one applies only to the
// statistic types listed in validFilters and is dropped for the others.
type FilterField string

const (
	FilterFieldProvider  FilterField = "provider"
	FilterFieldCreatedAt FilterField = "created_at"
)

var validFilters = map[FilterField][]StatisticType{
	FilterFieldProvider:  {StatisticTypeDailyWebhookCount, StatisticTypeDailyGmv},
	FilterFieldCreatedAt: {StatisticTypeDailyWebhookCount, StatisticTypeDailyGmv, StatisticTypeDailyNewUserCount},
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items"`
}

// filtersFor keeps the filters applicable to statisticType.
func (r *StatisticRequest) filtersFor(statisticType StatisticType) types.FiltersAnd {
	if r == nil {
		return nil
	}
	return lo.Filter(r.Filters, func(f *types.CommonFilter, _ int) bool {
		return f != nil && lo.Contains(validFilters[FilterField(f.Field)], statisticType)
	})
}

type StatisticResponseDataItem struct {
	Date   string  `json:"date,omitempty"`
	Label  string  `json:"label,omitempty"`
	Status string  `json:"status,omitempty"`
	Value  float64 `json:"value"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

func (s *Service) sqlite() bool {
	return s.db.Dialector.Name() == "sqlite"
}

// day renders column as YYYY-MM-DD in the current dialect.
func (s *Service) day(column string) string {
	if s.sqlite() {
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
}

// derivedField extracts a text field of the stored derived event.
func (s *Service) derivedField(field string) string {
	if s.sqlite() {
		return fmt.Sprintf("json_extract(derived, '$.event.%s')", field)
	}
	return fmt.Sprintf("derived->'event'->>'%s'", field)
}

func (s *Service) getDailyWebhookCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.day("created_at")
	q := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Select(day+" as date, event_type as label, status, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filtersFor(StatisticTypeDailyWebhookCount)}}).
		Group(day).Group("event_type").Group("status").
		Order("date DESC").Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getDailyGmv sums purchase amounts of first-time successful deliveries.
// Duplicates and replays are excluded so redeliveries never count twice.
func (s *Service) getDailyGmv(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.day("created_at")
	currency := s.derivedField("currency")
	amount := fmt.Sprintf("COALESCE(SUM(CAST(%s AS NUMERIC)), 0)", s.derivedField("amount"))
	q := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Select(fmt.Sprintf("%s as date, %s as label, %s as value", day, currency, amount)).
		Where("event_type = ? AND status = ? AND duplicate = ? AND replay_of IS NULL",
			types.EventKindPurchase, models.WebhookEventStatusSent, false).
		Where(clause.Where{Exprs: []clause.Expression{request.filtersFor(StatisticTypeDailyGmv)}}).
		Group(day).Group(currency).
		Order("date DESC").Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewUserCount(ctx context.Context, request *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	day := s.day("created_at")
	q := s.db.WithContext(ctx).Model(&models.User{}).
		Select(day + " as date, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.filtersFor(StatisticTypeDailyNewUserCount)}}).
		Group(day).
		Order("date DESC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getEnrollmentCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT c.slug AS label, e.status AS status, COUNT(*) AS value
FROM enrollments e
JOIN courses c ON c.id = e.course_id
GROUP BY c.slug, e.status
ORDER BY c.slug, e.status
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getOpenBounceCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Model(&models.EmailBounce{}).
		Select("status, count(*) as value").
		Where("status IN ?", []types.BounceStatus{types.BounceStatusPending, types.BounceStatusNeedsManual}).
		Group("status").
		Order("status")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyWebhookCount:
		return s.getDailyWebhookCount(ctx, request)
	case StatisticTypeDailyGmv:
		return s.getDailyGmv(ctx, request)
	case StatisticTypeDailyNewUserCount:
		return s.getDailyNewUserCount(ctx, request)
	case StatisticTypeEnrollmentCount:
		return s.getEnrollmentCount(ctx, request)
	case StatisticTypeOpenBounceCount:
		return s.getOpenBounceCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetStatistic computes every requested data item concurrently.
func (s *Service) GetStatistic(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	if err := types.AllowFields(request.Filters, string(FilterFieldProvider), string(FilterFieldCreatedAt)); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	wg.Wait()
	close(errChan)
	close(resChan)

	if err := <-errChan; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to compute statistic: %v", err)
		return nil, err
	}
	results := make(map[StatisticType][]StatisticResponseDataItem, len(request.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &StatisticResponse{DataItems: results}, nil
}
