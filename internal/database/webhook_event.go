package database

import (
	"time"

	"entitlement-api/internal/models"

	"gorm.io/gorm/clause"
)

// ClaimWebhookEvent 认领事件（insert-if-absent）
// Inserts a ledger row for (provider, event_id). Returns true when this
// delivery claimed the event and may apply side effects; false when a
// previous delivery already holds the claim. A row left in the failed state
// by an earlier delivery is re-claimable, so provider retries are not
// swallowed as duplicates; the state flip is a guarded UPDATE, only one of
// several concurrent retries wins it.
func ClaimWebhookEvent(event *models.WebhookEvent) (bool, error) {
	result := DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	reclaim := DB.Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_id = ? AND state = ?",
			event.Provider, event.EventID, models.WebhookEventFailed).
		Updates(map[string]interface{}{
			"state":            models.WebhookEventReceived,
			"processing_error": "",
		})
	if reclaim.Error != nil {
		return false, reclaim.Error
	}
	return reclaim.RowsAffected > 0, nil
}

// MarkWebhookEventProcessed 标记事件处理完成
func MarkWebhookEventProcessed(provider, eventID string) error {
	now := time.Now()
	return DB.Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Updates(map[string]interface{}{
			"state":        models.WebhookEventProcessed,
			"processed_at": now,
		}).Error
}

// MarkWebhookEventFailed 标记事件处理失败
// The row stays in the ledger with the failure reason; the next delivery of
// the same event re-claims it (see ClaimWebhookEvent).
func MarkWebhookEventFailed(provider, eventID, processingError string) error {
	return DB.Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Updates(map[string]interface{}{
			"state":            models.WebhookEventFailed,
			"processing_error": processingError,
		}).Error
}

// GetWebhookEvent 获取事件账本记录
func GetWebhookEvent(provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := DB.Where("provider = ? AND event_id = ?", provider, eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
