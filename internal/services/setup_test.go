package services

import (
	"testing"
	"time"

	"portfolio-host-service/internal/cache"
	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/models"
)

type testEnv struct {
	clock         *clock
	tenants       *fakeTenantStore
	bindings      *fakeBindingStore
	billingEvents *fakeBillingEventStore
	hostCache     *cache.MemoryHostCache
	edge          *MockEdgeProvider
	billing       *MockBillingProvider
	publisher     *recordingPublisher

	invalidator  *InvalidationCoordinator
	directory    *TenantDirectory
	entitlements *EntitlementService
	binder       *BindingService
	resolver     *HostResolver
}

func newTestEnv(t *testing.T) *testEnv {
	cfg := testConfig()
	env := &testEnv{
		clock:         newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		tenants:       newFakeTenantStore(),
		bindings:      newFakeBindingStore(),
		billingEvents: newFakeBillingEventStore(),
		hostCache:     cache.NewMemoryHostCache(100),
		edge:          &MockEdgeProvider{},
		billing:       &MockBillingProvider{},
		publisher:     &recordingPublisher{},
	}

	validator := NewDomainValidator(cfg)
	env.invalidator = NewInvalidationCoordinator(env.hostCache, nil, nil, nil)

	env.directory = NewTenantDirectory(env.tenants, validator, env.invalidator)
	env.directory.now = env.clock.Now

	env.entitlements = NewEntitlementService(env.tenants, env.billingEvents, env.billing, env.invalidator, nil, time.Second)
	env.entitlements.now = env.clock.Now

	env.binder = NewBindingService(cfg, env.bindings, env.tenants, env.directory, validator, env.edge, env.publisher, nil)
	env.binder.now = env.clock.Now

	env.resolver = NewHostResolver(cfg, env.tenants, env.hostCache, nil)
	env.resolver.now = env.clock.Now

	t.Cleanup(func() {
		env.edge.AssertExpectations(t)
		env.billing.AssertExpectations(t)
	})
	return env
}

// proTenant adds a tenant with an active subscription ending in 24 hours
func (e *testEnv) proTenant(username string) *models.Tenant {
	end := e.clock.Now().Add(24 * time.Hour)
	return e.tenants.add(&models.Tenant{
		Username:           &username,
		Email:              username + "@example.com",
		SubscriptionStatus: models.SubscriptionStatusActive,
		CurrentPeriodEnd:   &end,
		UsernameChanges:    1,
	})
}

// freeTenant adds a tenant without a subscription
func (e *testEnv) freeTenant(username string) *models.Tenant {
	return e.tenants.add(&models.Tenant{
		Username:        &username,
		Email:           username + "@example.com",
		UsernameChanges: 1,
	})
}

func pendingHostname(id, domain string) *clients.CustomHostname {
	return &clients.CustomHostname{
		ID:       id,
		Hostname: domain,
		Status:   "pending",
		OwnershipVerification: &clients.OwnershipVerification{
			Type: "txt", Name: "_cf-custom-hostname." + domain, Value: "token-" + id,
		},
	}
}

func activeHostname(id, domain string) *clients.CustomHostname {
	return &clients.CustomHostname{
		ID:       id,
		Hostname: domain,
		Status:   "active",
		SSL:      &clients.CustomHostnameSSL{Status: "active"},
	}
}
