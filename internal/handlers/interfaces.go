package handlers

import (
	"context"

	"portfolio-host-service/internal/models"

	"github.com/google/uuid"
)

// Binder is the binding manager surface used by the admin API
type Binder interface {
	RequestBinding(ctx context.Context, tenantID uuid.UUID, domain string, createdBy uuid.UUID) (*models.DomainBinding, error)
	CheckTenantVerification(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error)
	RemoveBinding(ctx context.Context, tenantID uuid.UUID) error
	GetBinding(ctx context.Context, tenantID uuid.UUID) (*models.BindingResponse, error)
	ListActivities(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.DomainActivity, error)
	ValidateDomain(ctx context.Context, tenantID uuid.UUID, req *models.ValidateDomainRequest) (*models.ValidateDomainResponse, error)
}

// Directory is the tenant directory surface used by the API
type Directory interface {
	CreateTenant(ctx context.Context, email string) (*models.Tenant, error)
	AssignUsername(ctx context.Context, tenantID uuid.UUID, username string) (*models.Tenant, error)
	DeleteTenant(ctx context.Context, tenantID uuid.UUID) error
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// Entitlements is the entitlement surface used by the API
type Entitlements interface {
	GetEntitlement(ctx context.Context, tenantID uuid.UUID) (*models.EntitlementResponse, error)
	Reconcile(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
	ApplyBillingEvent(ctx context.Context, event *models.BillingEvent) error
}

// Resolver maps inbound hosts to tenants
type Resolver interface {
	Resolve(ctx context.Context, host string) (*models.Resolution, error)
}

// WebhookParser verifies and decodes billing provider webhooks
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*models.BillingEvent, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}
