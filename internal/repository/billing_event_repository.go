package repository

import (
	"context"
	"time"

	"portfolio-host-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillingEventRepository records which billing events have been applied
type BillingEventRepository struct {
	db *gorm.DB
}

// NewBillingEventRepository creates a new billing event repository
func NewBillingEventRepository(db *gorm.DB) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

// Claim records the event id. It returns false if the id was already recorded.
func (r *BillingEventRepository) Claim(ctx context.Context, event *models.ProcessedBillingEvent) (bool, error) {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Release forgets a claimed event id so a redelivery can be applied again
func (r *BillingEventRepository) Release(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).Delete(&models.ProcessedBillingEvent{}, "event_id = ?", eventID).Error
}

// CleanupOlderThan removes processed event ids older than the retention window
func (r *BillingEventRepository) CleanupOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan)
	result := r.db.WithContext(ctx).
		Where("processed_at < ?", threshold).
		Delete(&models.ProcessedBillingEvent{})
	return result.RowsAffected, result.Error
}
