package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio-host-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBindingNotFound = errors.New("domain binding not found")
	ErrBindingInFlight = errors.New("tenant already has a binding attempt in flight")
	ErrStaleTransition = errors.New("binding status changed concurrently")
)

// BindingRepository handles database operations for domain binding attempts
type BindingRepository struct {
	db *gorm.DB
}

// NewBindingRepository creates a new binding repository
func NewBindingRepository(db *gorm.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// Create inserts a new attempt. The partial unique index on in-flight
// statuses rejects a second concurrent attempt for the same tenant.
func (r *BindingRepository) Create(ctx context.Context, binding *models.DomainBinding) error {
	err := r.db.WithContext(ctx).Create(binding).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrBindingInFlight
	}
	return err
}

// GetByID retrieves a binding by ID
func (r *BindingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DomainBinding, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

// GetInFlightByTenant retrieves the tenant's non-terminal attempt
func (r *BindingRepository) GetInFlightByTenant(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, models.InFlightBindingStatuses))
}

// GetPendingByDomain retrieves the attempt awaiting provider verification for a domain
func (r *BindingRepository) GetPendingByDomain(ctx context.Context, domain string) (*models.DomainBinding, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("domain = ? AND status = ?", domain, models.BindingStatusPendingVerification).
		Order("requested_at DESC"))
}

// GetLatestByTenant retrieves the most recent attempt of a tenant
func (r *BindingRepository) GetLatestByTenant(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("requested_at DESC"))
}

// GetLatestByDomain retrieves the most recent attempt for a domain
func (r *BindingRepository) GetLatestByDomain(ctx context.Context, domain string) (*models.DomainBinding, error) {
	return r.first(ctx, r.db.WithContext(ctx).
		Where("domain = ?", domain).
		Order("requested_at DESC"))
}

func (r *BindingRepository) first(ctx context.Context, query *gorm.DB) (*models.DomainBinding, error) {
	var binding models.DomainBinding
	err := query.First(&binding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

// Transition moves a binding from one status to another, applying extra
// column updates. It fails with ErrStaleTransition if the binding is no
// longer in the expected status.
func (r *BindingRepository) Transition(ctx context.Context, id uuid.UUID, from, to models.BindingStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range fields {
		// map updates bypass the json serializer
		if records, ok := v.([]models.DNSRecord); ok {
			encoded, err := json.Marshal(records)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", k, err)
			}
			v = string(encoded)
		}
		updates[k] = v
	}
	result := r.db.WithContext(ctx).Model(&models.DomainBinding{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrBindingInFlight
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// RecordCheck stores the time of a verification poll
func (r *BindingRepository) RecordCheck(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DomainBinding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_checked_at": checkedAt,
			"check_attempts":  gorm.Expr("check_attempts + 1"),
			"updated_at":      time.Now(),
		}).Error
}

// ListPendingVerification retrieves attempts awaiting verification, least recently checked first
func (r *BindingRepository) ListPendingVerification(ctx context.Context, limit int) ([]models.DomainBinding, error) {
	var bindings []models.DomainBinding
	err := r.db.WithContext(ctx).
		Where("status = ?", models.BindingStatusPendingVerification).
		Order("last_checked_at ASC NULLS FIRST").
		Limit(limit).
		Find(&bindings).Error
	return bindings, err
}

// ListStaleInFlight retrieves in-flight attempts requested before the cutoff
func (r *BindingRepository) ListStaleInFlight(ctx context.Context, requestedBefore time.Time, limit int) ([]models.DomainBinding, error) {
	var bindings []models.DomainBinding
	err := r.db.WithContext(ctx).
		Where("status IN ? AND requested_at < ?", models.InFlightBindingStatuses, requestedBefore).
		Order("requested_at ASC").
		Limit(limit).
		Find(&bindings).Error
	return bindings, err
}

// LogActivity logs a binding activity
func (r *BindingRepository) LogActivity(ctx context.Context, activity *models.DomainActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

// GetActivities retrieves the tenant's binding activity, newest first
func (r *BindingRepository) GetActivities(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.DomainActivity, error) {
	var activities []models.DomainActivity
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}

// CleanupOldActivities removes activities older than specified duration
func (r *BindingRepository) CleanupOldActivities(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan)
	result := r.db.WithContext(ctx).
		Where("created_at < ?", threshold).
		Delete(&models.DomainActivity{})
	return result.RowsAffected, result.Error
}
