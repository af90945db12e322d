package services

import (
	"context"
	"time"

	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/models"

	"github.com/google/uuid"
)

// TenantStore persists tenants. Implemented by repository.TenantRepository.
type TenantStore interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetByUsername(ctx context.Context, username string) (*models.Tenant, error)
	GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error)
	GetByBillingCustomer(ctx context.Context, customerRef string) (*models.Tenant, error)
	GetUnlinkedByEmail(ctx context.Context, email string) (*models.Tenant, error)
	SetCustomDomain(ctx context.Context, tenantID uuid.UUID, domain string) error
	ClearCustomDomain(ctx context.Context, tenantID uuid.UUID, expected string) error
	SetUsername(ctx context.Context, tenantID uuid.UUID, username string, expectedChanges int) error
	LinkBillingCustomer(ctx context.Context, tenantID uuid.UUID, customerRef string) error
	UpdateSubscription(ctx context.Context, tenantID uuid.UUID, state models.SubscriptionState) (bool, error)
	ListEntitlementsEndedBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Tenant, error)
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

// BindingStore persists domain binding attempts. Implemented by repository.BindingRepository.
type BindingStore interface {
	Create(ctx context.Context, binding *models.DomainBinding) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DomainBinding, error)
	GetInFlightByTenant(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error)
	GetPendingByDomain(ctx context.Context, domain string) (*models.DomainBinding, error)
	GetLatestByTenant(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error)
	Transition(ctx context.Context, id uuid.UUID, from, to models.BindingStatus, fields map[string]interface{}) error
	RecordCheck(ctx context.Context, id uuid.UUID, checkedAt time.Time) error
	ListPendingVerification(ctx context.Context, limit int) ([]models.DomainBinding, error)
	ListStaleInFlight(ctx context.Context, requestedBefore time.Time, limit int) ([]models.DomainBinding, error)
	LogActivity(ctx context.Context, activity *models.DomainActivity) error
	GetActivities(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.DomainActivity, error)
}

// BillingEventStore records processed billing event ids
type BillingEventStore interface {
	Claim(ctx context.Context, event *models.ProcessedBillingEvent) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// EdgeProvider registers custom hostnames with the edge/TLS provider
type EdgeProvider interface {
	RegisterHostname(ctx context.Context, domain string) (*clients.CustomHostname, error)
	GetHostname(ctx context.Context, hostnameID string) (*clients.CustomHostname, error)
	GetHostnameByName(ctx context.Context, domain string) (*clients.CustomHostname, error)
	DeleteHostname(ctx context.Context, hostnameID string) error
}

// BillingProvider reads live subscription state
type BillingProvider interface {
	GetSubscription(ctx context.Context, customerRef string) (*clients.SubscriptionSnapshot, error)
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	GetCustomerEmail(ctx context.Context, customerRef string) (string, error)
}

// PagePurger drops rendered pages from the render cache by tag
type PagePurger interface {
	Purge(ctx context.Context, tags []string) error
}

// InvalidationBroadcaster tells other replicas to drop cache keys
type InvalidationBroadcaster interface {
	Broadcast(ctx context.Context, keys []string) error
}

// BindingEventPublisher publishes domain lifecycle events
type BindingEventPublisher interface {
	PublishBinding(eventType string, binding *models.DomainBinding, previousStatus models.BindingStatus)
}
