package models

import (
	"time"
)

// WebhookEventState tracks ledger row lifecycle.
type WebhookEventState string

const (
	WebhookEventReceived  WebhookEventState = "received"
	WebhookEventProcessed WebhookEventState = "processed"
	WebhookEventFailed    WebhookEventState = "failed"
)

// WebhookEvent 已处理事件账本
// Durable processed-event ledger for the settlement webhook. Insert-if-absent
// on (provider, event_id) is what turns at-least-once delivery into
// exactly-once effect: a duplicate delivery fails the unique index and is
// acknowledged without side effects.
type WebhookEvent struct {
	BaseModel

	Provider string `json:"provider" gorm:"not null;size:32;index:idx_webhook_provider_event,unique"`
	EventID  string `json:"event_id" gorm:"not null;size:128;index:idx_webhook_provider_event,unique"`

	EventType   string `json:"event_type" gorm:"not null;size:64;index"`
	PayloadJSON string `json:"payload_json" gorm:"type:text"`

	State           WebhookEventState `json:"state" gorm:"not null;size:20;default:'received';index"`
	ProcessingError string            `json:"processing_error" gorm:"type:text"`
	ProcessedAt     *time.Time        `json:"processed_at"`
}

// TableName 指定表名
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
