package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventStatus string

const (
	WebhookEventStatusSent   WebhookEventStatus = "sent"
	WebhookEventStatusFailed WebhookEventStatus = "failed"
)

// Audit event types besides the purchase/refund kinds.
const (
	WebhookEventTypeInvalid = "invalid"
	WebhookEventTypeError   = "error"
)

// WebhookEvent is the append-only audit row of one inbound delivery.
// Rows are inserted once and never updated.
type WebhookEvent struct {
	ID            string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider      string             `gorm:"column:provider;type:varchar(64);not null;index:idx_webhook_event_dedup,priority:1" json:"provider"`
	EventType     string             `gorm:"column:event_type;type:varchar(32);not null;index:idx_webhook_event_dedup,priority:2" json:"event_type"`
	TransactionID string             `gorm:"column:transaction_id;type:varchar(128);index:idx_webhook_event_dedup,priority:3" json:"transaction_id"`
	Status        WebhookEventStatus `gorm:"column:status;type:varchar(16);not null;index:idx_webhook_event_dedup,priority:4" json:"status"`
	Email         string             `gorm:"column:email;type:varchar(320);index" json:"email"`
	// Duplicate marks deliveries short-circuited by dedup; they performed no mutation.
	Duplicate bool           `gorm:"column:duplicate;not null;default:false" json:"duplicate"`
	ReplayOf  *string        `gorm:"column:replay_of;type:uuid" json:"replay_of"`
	TraceID   string         `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Derived   datatypes.JSON `gorm:"column:derived;type:jsonb" json:"derived"`
	Result    datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }
