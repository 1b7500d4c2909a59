package webhook_log

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/funnelhook/internal/models"
	"github.com/fatflowers/funnelhook/internal/platform/db"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/tool"
	"github.com/fatflowers/funnelhook/pkg/types"
)

var (
	// ErrAlreadyProcessed means a previous delivery of the same transaction
	// completed successfully.
	ErrAlreadyProcessed = errors.New("webhook already processed")
	// ErrInFlight means another delivery of the same transaction holds a live lease.
	ErrInFlight = errors.New("webhook delivery in flight")
	ErrNotFound = errors.New("webhook event not found")
)

const defaultLease = 2 * time.Minute

// ScanFields are the columns admin listings may filter and sort on.
var ScanFields = []string{"id", "provider", "event_type", "transaction_id", "status", "email", "duplicate", "replay_of", "trace_id", "created_at"}

type Service struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	lease time.Duration
	now   func() time.Time
}

func New(gdb *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Service {
	lease := cfg.Dedup.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	return &Service{db: gdb, log: log, lease: lease, now: time.Now}
}

// IsProcessed reports whether a successful audit row exists for the
// transaction. Failed rows do not count.
func (s *Service) IsProcessed(ctx context.Context, provider types.Provider, kind types.EventKind, transactionID string) (bool, error) {
	if transactionID == "" {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_type = ? AND transaction_id = ? AND status = ?",
			provider, kind, transactionID, models.WebhookEventStatusSent).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check processed webhook: %w", err)
	}
	return n > 0, nil
}

// Reserve claims the transaction for this delivery. A blank transaction id
// cannot be deduplicated and yields a nil reservation.
func (s *Service) Reserve(ctx context.Context, provider types.Provider, kind types.EventKind, transactionID string) (*models.WebhookReservation, error) {
	if transactionID == "" {
		return nil, nil
	}
	now := s.now()
	r := &models.WebhookReservation{
		ID:             tool.GenerateUUIDV7(),
		Provider:       string(provider),
		EventKind:      string(kind),
		TransactionID:  transactionID,
		Status:         models.WebhookReservationStatusProcessing,
		Attempts:       1,
		LeaseExpiresAt: now.Add(s.lease),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_kind"}, {Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(r)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return r, nil
	}

	var existing models.WebhookReservation
	if err := s.db.WithContext(ctx).
		Where("provider = ? AND event_kind = ? AND transaction_id = ?", provider, kind, transactionID).
		First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}

	switch {
	case existing.Status == models.WebhookReservationStatusSucceeded:
		return nil, ErrAlreadyProcessed
	case existing.Status == models.WebhookReservationStatusProcessing && existing.LeaseExpiresAt.After(now):
		return nil, ErrInFlight
	}

	// failed, or processing with an expired lease: take over unless someone
	// else bumped attempts first
	upd := s.db.WithContext(ctx).Model(&models.WebhookReservation{}).
		Where("id = ? AND attempts = ?", existing.ID, existing.Attempts).
		Updates(map[string]any{
			"status":           models.WebhookReservationStatusProcessing,
			"attempts":         existing.Attempts + 1,
			"lease_expires_at": now.Add(s.lease),
		})
	if upd.Error != nil {
		return nil, fmt.Errorf("failed to take over reservation: %w", upd.Error)
	}
	if upd.RowsAffected == 0 {
		return nil, ErrInFlight
	}
	logctx.FromCtx(ctx, s.log).Infow("reservation_taken_over",
		"transaction_id", transactionID, "previous_status", existing.Status, "attempts", existing.Attempts+1)

	existing.Status = models.WebhookReservationStatusProcessing
	existing.Attempts++
	existing.LeaseExpiresAt = now.Add(s.lease)
	return &existing, nil
}

// Finish moves the reservation to its terminal state. Nil is a no-op.
func (s *Service) Finish(ctx context.Context, r *models.WebhookReservation, ok bool, eventID string) error {
	if r == nil {
		return nil
	}
	status := models.WebhookReservationStatusFailed
	if ok {
		status = models.WebhookReservationStatusSucceeded
	}
	updates := map[string]any{
		"status":           status,
		"lease_expires_at": s.now(),
	}
	if eventID != "" {
		updates["last_event_id"] = eventID
	}
	if err := s.db.WithContext(ctx).Model(&models.WebhookReservation{}).
		Where("id = ? AND attempts = ?", r.ID, r.Attempts).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finish reservation: %w", err)
	}
	r.Status = status
	return nil
}

// Append inserts one audit row. Rows are never updated afterwards.
func (s *Service) Append(ctx context.Context, ev *models.WebhookEvent) error {
	if ev == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = tool.GenerateUUIDV7()
	}
	if ev.TraceID == "" {
		ev.TraceID = logctx.TraceID(ctx)
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event: %v", err)
		return fmt.Errorf("failed to save webhook event: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &ev, nil
}

// Scan lists audit rows for the admin API.
func (s *Service) Scan(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[models.WebhookEvent], error) {
	return db.Scan[models.WebhookEvent](ctx, s.db, req, ScanFields...)
}
