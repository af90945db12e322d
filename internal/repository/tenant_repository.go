package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"portfolio-host-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrDomainTaken           = errors.New("domain already bound to another tenant")
	ErrDomainNotBound        = errors.New("tenant has no custom domain bound")
	ErrUsernameTaken         = errors.New("username already taken")
	ErrUsernameConflict      = errors.New("username changed concurrently")
	ErrCustomerAlreadyLinked = errors.New("tenant already linked to a different billing customer")
	ErrBillingCustomerInUse  = errors.New("billing customer linked to another tenant")
)

// TenantRepository handles database operations for tenants
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	tenant.Email = strings.ToLower(strings.TrimSpace(tenant.Email))
	return r.db.WithContext(ctx).Create(tenant).Error
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByUsername retrieves a tenant by its (lowercase) username
func (r *TenantRepository) GetByUsername(ctx context.Context, username string) (*models.Tenant, error) {
	return r.first(ctx, "username = ?", username)
}

// GetByCustomDomain retrieves the tenant a normalized custom domain is bound to
func (r *TenantRepository) GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return r.first(ctx, "custom_domain = ?", domain)
}

// GetByBillingCustomer retrieves a tenant by its billing customer reference
func (r *TenantRepository) GetByBillingCustomer(ctx context.Context, customerRef string) (*models.Tenant, error) {
	return r.first(ctx, "billing_customer_ref = ?", customerRef)
}

// GetUnlinkedByEmail retrieves the oldest tenant with this email that has no billing customer yet
func (r *TenantRepository) GetUnlinkedByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("email = ? AND billing_customer_ref IS NULL", strings.ToLower(strings.TrimSpace(email))).
		Order("created_at ASC").
		First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) first(ctx context.Context, query string, args ...interface{}) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).Where(query, args...).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// SetCustomDomain binds a domain to a tenant. The unique index on custom_domain
// makes the write atomic with respect to other tenants.
func (r *TenantRepository) SetCustomDomain(ctx context.Context, tenantID uuid.UUID, domain string) error {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"custom_domain": domain,
			"updated_at":    time.Now(),
		})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrDomainTaken
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// ClearCustomDomain unbinds the domain only if it is still the expected one
func (r *TenantRepository) ClearCustomDomain(ctx context.Context, tenantID uuid.UUID, expected string) error {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND custom_domain = ?", tenantID, expected).
		Updates(map[string]interface{}{
			"custom_domain": nil,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDomainNotBound
	}
	return nil
}

// SetUsername assigns a username, guarded by the number of changes already made
func (r *TenantRepository) SetUsername(ctx context.Context, tenantID uuid.UUID, username string, expectedChanges int) error {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND username_changes = ?", tenantID, expectedChanges).
		Updates(map[string]interface{}{
			"username":         username,
			"username_changes": expectedChanges + 1,
			"updated_at":       time.Now(),
		})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrUsernameTaken
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUsernameConflict
	}
	return nil
}

// LinkBillingCustomer stores the billing customer reference on first linkage
func (r *TenantRepository) LinkBillingCustomer(ctx context.Context, tenantID uuid.UUID, customerRef string) error {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND (billing_customer_ref IS NULL OR billing_customer_ref = ?)", tenantID, customerRef).
		Updates(map[string]interface{}{
			"billing_customer_ref": customerRef,
			"updated_at":           time.Now(),
		})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrBillingCustomerInUse
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCustomerAlreadyLinked
	}
	return nil
}

// UpdateSubscription writes subscription state unless a newer observation is already stored.
// Returns false when the write was skipped as stale.
func (r *TenantRepository) UpdateSubscription(ctx context.Context, tenantID uuid.UUID, state models.SubscriptionState) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND (subscription_synced_at IS NULL OR subscription_synced_at <= ?)", tenantID, state.ObservedAt).
		Updates(map[string]interface{}{
			"subscription_status":    state.Status,
			"product_ref":            state.ProductRef,
			"current_period_end":     state.CurrentPeriodEnd,
			"subscription_synced_at": state.ObservedAt,
			"updated_at":             time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListEntitlementsEndedBetween returns active tenants whose period end fell in (from, to]
func (r *TenantRepository) ListEntitlementsEndedBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.WithContext(ctx).
		Where("subscription_status = ? AND current_period_end > ? AND current_period_end <= ?",
			models.SubscriptionStatusActive, from, to).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&tenants).Error
	return tenants, err
}

// Delete releases the tenant's unique keys and soft-deletes it
func (r *TenantRepository) Delete(ctx context.Context, tenantID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Tenant{}).
			Where("id = ?", tenantID).
			Updates(map[string]interface{}{
				"custom_domain": nil,
				"username":      nil,
				"updated_at":    time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTenantNotFound
		}
		return tx.Delete(&models.Tenant{}, "id = ?", tenantID).Error
	})
}
