package handlers

import (
	"context"

	"portfolio-host-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockBinder is a mock implementation of Binder
type MockBinder struct {
	mock.Mock
}

func (m *MockBinder) RequestBinding(ctx context.Context, tenantID uuid.UUID, domain string, createdBy uuid.UUID) (*models.DomainBinding, error) {
	args := m.Called(ctx, tenantID, domain, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DomainBinding), args.Error(1)
}

func (m *MockBinder) CheckTenantVerification(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DomainBinding), args.Error(1)
}

func (m *MockBinder) RemoveBinding(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *MockBinder) GetBinding(ctx context.Context, tenantID uuid.UUID) (*models.BindingResponse, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BindingResponse), args.Error(1)
}

func (m *MockBinder) ListActivities(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.DomainActivity, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DomainActivity), args.Error(1)
}

func (m *MockBinder) ValidateDomain(ctx context.Context, tenantID uuid.UUID, req *models.ValidateDomainRequest) (*models.ValidateDomainResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ValidateDomainResponse), args.Error(1)
}

// MockDirectory is a mock implementation of Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) CreateTenant(ctx context.Context, email string) (*models.Tenant, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockDirectory) AssignUsername(ctx context.Context, tenantID uuid.UUID, username string) (*models.Tenant, error) {
	args := m.Called(ctx, tenantID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockDirectory) DeleteTenant(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *MockDirectory) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

// MockEntitlements is a mock implementation of Entitlements
type MockEntitlements struct {
	mock.Mock
}

func (m *MockEntitlements) GetEntitlement(ctx context.Context, tenantID uuid.UUID) (*models.EntitlementResponse, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EntitlementResponse), args.Error(1)
}

func (m *MockEntitlements) Reconcile(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockEntitlements) ApplyBillingEvent(ctx context.Context, event *models.BillingEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockResolver is a mock implementation of Resolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, host string) (*models.Resolution, error) {
	args := m.Called(ctx, host)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Resolution), args.Error(1)
}

// MockWebhookParser is a mock implementation of WebhookParser
type MockWebhookParser struct {
	mock.Mock
}

func (m *MockWebhookParser) ParseWebhook(payload []byte, signature string) (*models.BillingEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BillingEvent), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
