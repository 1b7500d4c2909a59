package models

import "time"

type WebhookReservationStatus string

const (
	WebhookReservationStatusProcessing WebhookReservationStatus = "processing"
	WebhookReservationStatusSucceeded  WebhookReservationStatus = "succeeded"
	WebhookReservationStatusFailed     WebhookReservationStatus = "failed"
)

// WebhookReservation tracks one provider transaction through
// unseen -> processing -> succeeded|failed. The unique index is what makes
// concurrent deliveries of the same transaction serialize.
type WebhookReservation struct {
	ID             string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider       string                   `gorm:"column:provider;type:varchar(64);not null;uniqueIndex:unique_webhook_reservation,priority:1" json:"provider"`
	EventKind      string                   `gorm:"column:event_kind;type:varchar(32);not null;uniqueIndex:unique_webhook_reservation,priority:2" json:"event_kind"`
	TransactionID  string                   `gorm:"column:transaction_id;type:varchar(128);not null;uniqueIndex:unique_webhook_reservation,priority:3" json:"transaction_id"`
	Status         WebhookReservationStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Attempts       int                      `gorm:"column:attempts;not null;default:1" json:"attempts"`
	LeaseExpiresAt time.Time                `gorm:"column:lease_expires_at;not null" json:"lease_expires_at"`
	LastEventID    *string                  `gorm:"column:last_event_id;type:uuid" json:"last_event_id"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

func (WebhookReservation) TableName() string { return "webhook_reservations" }
