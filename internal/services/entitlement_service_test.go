package services

import (
	"context"
	"testing"
	"time"

	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEntitledAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		status models.SubscriptionStatus
		end    *time.Time
		want   bool
	}{
		{"active with future period end", models.SubscriptionStatusActive, &future, true},
		{"active with past period end", models.SubscriptionStatusActive, &past, false},
		{"active period ending now", models.SubscriptionStatusActive, &now, false},
		{"active without period end", models.SubscriptionStatusActive, nil, false},
		{"past due", models.SubscriptionStatusPastDue, &future, false},
		{"cancelled", models.SubscriptionStatusCancelled, &future, false},
		{"none", models.SubscriptionStatusNone, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := &models.Tenant{SubscriptionStatus: tt.status, CurrentPeriodEnd: tt.end}
			assert.Equal(t, tt.want, EntitledAt(tenant, now))
		})
	}
}

func linkedTenant(t *testing.T, env *testEnv, username, customerRef string) *models.Tenant {
	tenant := env.freeTenant(username)
	require.NoError(t, env.tenants.LinkBillingCustomer(context.Background(), tenant.ID, customerRef))
	return env.tenants.get(tenant.ID)
}

func subscriptionEvent(id, customerRef string, status models.SubscriptionStatus, periodEnd, occurredAt time.Time) *models.BillingEvent {
	return &models.BillingEvent{
		EventID:          id,
		EventType:        "customer.subscription.updated",
		CustomerRef:      customerRef,
		Status:           status,
		CurrentPeriodEnd: &periodEnd,
		OccurredAt:       occurredAt,
	}
}

func TestApplyBillingEvent_IsEntitledImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := linkedTenant(t, env, "bob", "cus_bob")
	now := env.clock.Now()

	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_1", "cus_bob", models.SubscriptionStatusActive, now.Add(30*24*time.Hour), now)))

	entitled, err := env.entitlements.IsEntitled(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, entitled)

	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_2", "cus_bob", models.SubscriptionStatusPastDue, now.Add(30*24*time.Hour), now.Add(time.Minute))))

	entitled, err = env.entitlements.IsEntitled(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, entitled)
}

func TestApplyBillingEvent_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := linkedTenant(t, env, "bob", "cus_bob")
	now := env.clock.Now()
	event := subscriptionEvent("evt_1", "cus_bob", models.SubscriptionStatusActive, now.Add(30*24*time.Hour), now)

	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx, event))
	once := env.tenants.get(bob.ID)

	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx, event))
	twice := env.tenants.get(bob.ID)

	assert.Equal(t, once, twice)
}

func TestApplyBillingEvent_OlderEventDoesNotOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := linkedTenant(t, env, "bob", "cus_bob")
	now := env.clock.Now()

	cancelled := subscriptionEvent("evt_2", "cus_bob", models.SubscriptionStatusCancelled, now, now.Add(time.Hour))
	active := subscriptionEvent("evt_1", "cus_bob", models.SubscriptionStatusActive, now.Add(30*24*time.Hour), now)

	// delivered out of order
	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx, cancelled))
	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx, active))

	assert.Equal(t, models.SubscriptionStatusCancelled, env.tenants.get(bob.ID).SubscriptionStatus)
}

func TestApplyBillingEvent_UnknownCustomer(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()

	event := subscriptionEvent("evt_1", "cus_ghost", models.SubscriptionStatusActive, now.Add(time.Hour), now)
	event.CustomerEmail = "ghost@example.com"

	err := env.entitlements.ApplyBillingEvent(context.Background(), event)

	assert.ErrorIs(t, err, ErrUnknownCustomer)
	assert.Empty(t, env.billingEvents.claimed, "unknown customers are not claimed so redelivery can succeed")
}

func TestApplyBillingEvent_LinksByProviderEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dave := env.freeTenant("dave")
	now := env.clock.Now()

	env.billing.On("GetCustomerEmail", mock.Anything, "cus_dave").Return("dave@example.com", nil).Once()

	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_1", "cus_dave", models.SubscriptionStatusActive, now.Add(time.Hour), now)))

	stored := env.tenants.get(dave.ID)
	require.NotNil(t, stored.BillingCustomerRef)
	assert.Equal(t, "cus_dave", *stored.BillingCustomerRef)
	assert.True(t, EntitledAt(stored, now))
}

func TestApplyBillingEvent_LinkOnlyReconciles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	erin := env.freeTenant("erin")
	end := env.clock.Now().Add(30 * 24 * time.Hour)

	env.billing.On("GetSubscription", mock.Anything, "cus_erin").Return(&clients.SubscriptionSnapshot{
		CustomerRef:      "cus_erin",
		Status:           models.SubscriptionStatusActive,
		ProductRef:       "prod_pro",
		CurrentPeriodEnd: &end,
	}, nil).Once()

	err := env.entitlements.ApplyBillingEvent(ctx, &models.BillingEvent{
		EventID:       "evt_checkout",
		EventType:     "checkout.session.completed",
		CustomerRef:   "cus_erin",
		CustomerEmail: "erin@example.com",
		OccurredAt:    env.clock.Now(),
	})
	require.NoError(t, err)

	entitled, err := env.entitlements.IsEntitled(ctx, erin.ID)
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.Equal(t, "prod_pro", env.tenants.get(erin.ID).ProductRef)
}

func TestApplyBillingEvent_TransitionInvalidatesCustomDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")
	require.NoError(t, env.tenants.LinkBillingCustomer(ctx, bob.ID, "cus_bob"))
	require.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "bob.dev"))

	res, err := env.resolver.Resolve(ctx, "bob.dev")
	require.NoError(t, err)
	require.True(t, res.Found)

	now := env.clock.Now()
	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_cancel", "cus_bob", models.SubscriptionStatusCancelled, now, now)))

	res, err = env.resolver.Resolve(ctx, "bob.dev")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestApplyBillingEvent_RenewalReactivatesMaskedDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.proTenant("bob")
	require.NoError(t, env.tenants.LinkBillingCustomer(ctx, bob.ID, "cus_bob"))
	require.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "bob.dev"))

	env.clock.Advance(25 * time.Hour)
	res, err := env.resolver.Resolve(ctx, "bob.dev")
	require.NoError(t, err)
	require.False(t, res.Found)

	now := env.clock.Now()
	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_renew", "cus_bob", models.SubscriptionStatusActive, now.Add(30*24*time.Hour), now)))

	res, err = env.resolver.Resolve(ctx, "bob.dev")
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestReconcile_ProviderUnavailableLeavesState(t *testing.T) {
	env := newTestEnv(t)
	bob := env.proTenant("bob")
	require.NoError(t, env.tenants.LinkBillingCustomer(context.Background(), bob.ID, "cus_bob"))
	before := env.tenants.get(bob.ID)

	env.billing.On("GetSubscription", mock.Anything, "cus_bob").Return(nil, clients.ErrBillingUnavailable).Once()

	_, err := env.entitlements.Reconcile(context.Background(), bob.ID)

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, before, env.tenants.get(bob.ID))
}

func TestReconcile_NewerThanWebhookWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := linkedTenant(t, env, "bob", "cus_bob")
	start := env.clock.Now()

	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_1", "cus_bob", models.SubscriptionStatusPastDue, start, start)))

	end := start.Add(30 * 24 * time.Hour)
	env.billing.On("GetSubscription", mock.Anything, "cus_bob").Return(&clients.SubscriptionSnapshot{
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: &end,
	}, nil).Once()

	env.clock.Advance(time.Minute)
	tenant, err := env.entitlements.Reconcile(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, tenant.SubscriptionStatus)

	// a webhook generated before the reconcile is now stale
	require.NoError(t, env.entitlements.ApplyBillingEvent(ctx,
		subscriptionEvent("evt_2", "cus_bob", models.SubscriptionStatusCancelled, start, start.Add(30*time.Second))))
	assert.Equal(t, models.SubscriptionStatusActive, env.tenants.get(bob.ID).SubscriptionStatus)
}

func TestReconcile_UnknownCustomer(t *testing.T) {
	env := newTestEnv(t)
	frank := env.freeTenant("frank")

	env.billing.On("FindCustomerByEmail", mock.Anything, "frank@example.com").Return("", clients.ErrCustomerNotFound).Once()

	_, err := env.entitlements.Reconcile(context.Background(), frank.ID)

	assert.ErrorIs(t, err, ErrUnknownCustomer)
}

func TestGetEntitlement(t *testing.T) {
	env := newTestEnv(t)
	bob := env.proTenant("bob")

	resp, err := env.entitlements.GetEntitlement(context.Background(), bob.ID)

	require.NoError(t, err)
	assert.True(t, resp.Entitled)
	assert.Equal(t, models.SubscriptionStatusActive, resp.Status)
	require.NotNil(t, resp.CurrentPeriodEnd)
}

func TestSweepExpired_InvalidatesLapsedTenants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := env.clock.Now()

	bob := env.proTenant("bob")
	require.NoError(t, env.directory.BindCustomDomain(ctx, bob.ID, "bob.dev"))
	env.proTenant("carol")
	longTerm := env.freeTenant("dave")
	end := start.Add(90 * 24 * time.Hour)
	_, err := env.tenants.UpdateSubscription(ctx, longTerm.ID, models.SubscriptionState{
		Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &end, ObservedAt: start,
	})
	require.NoError(t, err)

	_, err = env.resolver.Resolve(ctx, "bob.dev")
	require.NoError(t, err)
	require.NotZero(t, env.hostCache.Len())

	env.clock.Advance(25 * time.Hour)
	swept, err := env.entitlements.SweepExpired(ctx, start, env.clock.Now(), 10)

	require.NoError(t, err)
	assert.Equal(t, 2, swept, "bob and carol lapsed, dave is still paid up")
	assert.Zero(t, env.hostCache.Len())
}
