package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EntitledAt reports whether the tenant holds an active paid plan at now
func EntitledAt(tenant *models.Tenant, now time.Time) bool {
	end := tenant.EntitledUntil()
	return end != nil && now.Before(*end)
}

// EntitlementService decides whether a tenant may use paid features and keeps
// the local subscription state in step with the billing provider
type EntitlementService struct {
	tenants     TenantStore
	events      BillingEventStore
	billing     BillingProvider
	invalidator *InvalidationCoordinator
	metrics     *metrics.Metrics
	timeout     time.Duration
	now         func() time.Time
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(
	tenants TenantStore,
	events BillingEventStore,
	billing BillingProvider,
	invalidator *InvalidationCoordinator,
	m *metrics.Metrics,
	providerTimeout time.Duration,
) *EntitlementService {
	return &EntitlementService{
		tenants:     tenants,
		events:      events,
		billing:     billing,
		invalidator: invalidator,
		metrics:     m,
		timeout:     providerTimeout,
		now:         time.Now,
	}
}

// IsEntitled reads local state only and never calls the billing provider
func (s *EntitlementService) IsEntitled(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return false, mapTenantErr(err)
	}
	return EntitledAt(tenant, s.now()), nil
}

// GetEntitlement returns the tenant's entitlement for API responses
func (s *EntitlementService) GetEntitlement(ctx context.Context, tenantID uuid.UUID) (*models.EntitlementResponse, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, mapTenantErr(err)
	}
	return s.toEntitlementResponse(tenant), nil
}

// ApplyBillingEvent applies one verified billing webhook. Redelivered events
// are no-ops, and an event older than the stored state does not overwrite it.
func (s *EntitlementService) ApplyBillingEvent(ctx context.Context, event *models.BillingEvent) error {
	tenant, err := s.tenantForEvent(ctx, event)
	if err != nil {
		if errors.Is(err, ErrUnknownCustomer) {
			s.metrics.BillingEvent("unknown_customer")
			log.Warn().Str("event_id", event.EventID).Str("event_type", event.EventType).Msg("Billing event for unknown customer")
		} else {
			s.metrics.BillingEvent("error")
		}
		return err
	}

	claimed, err := s.events.Claim(ctx, &models.ProcessedBillingEvent{
		EventID:     event.EventID,
		TenantID:    tenant.ID,
		EventType:   event.EventType,
		OccurredAt:  event.OccurredAt,
		ProcessedAt: s.now(),
	})
	if err != nil {
		s.metrics.BillingEvent("error")
		return fmt.Errorf("failed to claim billing event: %w", err)
	}
	if !claimed {
		s.metrics.BillingEvent("duplicate")
		log.Debug().Str("event_id", event.EventID).Msg("Billing event already processed")
		return nil
	}

	if event.LinkOnly() {
		s.metrics.BillingEvent("linked")
		log.Info().Str("tenant_id", tenant.ID.String()).Str("event_id", event.EventID).Msg("Billing customer linked")
		if _, err := s.Reconcile(ctx, tenant.ID); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenant.ID.String()).Msg("Reconcile after customer link failed")
		}
		return nil
	}

	applied, err := s.applyState(ctx, tenant, models.SubscriptionState{
		Status:           event.Status,
		ProductRef:       event.ProductRef,
		CurrentPeriodEnd: event.CurrentPeriodEnd,
		ObservedAt:       event.OccurredAt,
	})
	if err != nil {
		var invalidationErr *invalidationError
		if !errors.As(err, &invalidationErr) {
			if releaseErr := s.events.Release(ctx, event.EventID); releaseErr != nil {
				log.Error().Err(releaseErr).Str("event_id", event.EventID).Msg("Failed to release billing event claim")
			}
		}
		s.metrics.BillingEvent("error")
		return err
	}

	if !applied {
		s.metrics.BillingEvent("stale")
		log.Info().
			Str("tenant_id", tenant.ID.String()).
			Str("event_id", event.EventID).
			Time("occurred_at", event.OccurredAt).
			Msg("Skipped billing event older than stored subscription state")
		return nil
	}

	s.metrics.BillingEvent("applied")
	log.Info().
		Str("tenant_id", tenant.ID.String()).
		Str("event_id", event.EventID).
		Str("status", string(event.Status)).
		Msg("Billing event applied")
	return nil
}

// Reconcile fetches the live subscription from the billing provider and
// stores it. Local state is left untouched when the provider cannot answer.
func (s *EntitlementService) Reconcile(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, mapTenantErr(err)
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if tenant.BillingCustomerRef == nil {
		customerRef, err := s.billing.FindCustomerByEmail(providerCtx, tenant.Email)
		if err != nil {
			return nil, mapBillingErr(err)
		}
		if err := s.link(ctx, tenant, customerRef); err != nil {
			return nil, err
		}
	}

	fetchedAt := s.now()
	snap, err := s.billing.GetSubscription(providerCtx, *tenant.BillingCustomerRef)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("Subscription reconcile failed")
		return nil, mapBillingErr(err)
	}

	if _, err := s.applyState(ctx, tenant, models.SubscriptionState{
		Status:           snap.Status,
		ProductRef:       snap.ProductRef,
		CurrentPeriodEnd: snap.CurrentPeriodEnd,
		ObservedAt:       fetchedAt,
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("status", string(tenant.SubscriptionStatus)).
		Msg("Subscription reconciled")

	return tenant, nil
}

// SweepExpired invalidates tenants whose paid period ended in (from, to].
// Lapsed entitlement is already masked at resolve time; this drops the
// rendered pages too.
func (s *EntitlementService) SweepExpired(ctx context.Context, from, to time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	swept := 0
	for {
		tenants, err := s.tenants.ListEntitlementsEndedBetween(ctx, from, to, batch)
		if err != nil {
			return swept, fmt.Errorf("failed to list expired entitlements: %w", err)
		}

		for i := range tenants {
			if err := s.invalidator.InvalidateTenant(ctx, &tenants[i]); err != nil {
				return swept, err
			}
			swept++
		}

		if len(tenants) < batch {
			return swept, nil
		}
		// rows are ordered by period end
		from = *tenants[len(tenants)-1].CurrentPeriodEnd
	}
}

type invalidationError struct {
	err error
}

func (e *invalidationError) Error() string { return e.err.Error() }
func (e *invalidationError) Unwrap() error { return e.err }

// applyState writes state with last-write-wins and invalidates the tenant's
// cache keys when its entitlement window changed
func (s *EntitlementService) applyState(ctx context.Context, tenant *models.Tenant, state models.SubscriptionState) (bool, error) {
	before := tenant.EntitledUntil()

	applied, err := s.tenants.UpdateSubscription(ctx, tenant.ID, state)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	if !applied {
		return false, nil
	}

	syncedAt := state.ObservedAt
	tenant.SubscriptionStatus = state.Status
	tenant.ProductRef = state.ProductRef
	tenant.CurrentPeriodEnd = state.CurrentPeriodEnd
	tenant.SubscriptionSyncedAt = &syncedAt

	if !sameTime(before, tenant.EntitledUntil()) {
		log.Info().
			Str("tenant_id", tenant.ID.String()).
			Bool("entitled", EntitledAt(tenant, s.now())).
			Msg("Entitlement changed")
		if err := s.invalidator.InvalidateTenant(ctx, tenant); err != nil {
			return true, &invalidationError{err: err}
		}
	}
	return true, nil
}

// tenantForEvent finds the tenant by customer ref, falling back to an
// unlinked tenant with the customer's email and linking it
func (s *EntitlementService) tenantForEvent(ctx context.Context, event *models.BillingEvent) (*models.Tenant, error) {
	tenant, err := s.tenants.GetByBillingCustomer(ctx, event.CustomerRef)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, repository.ErrTenantNotFound) {
		return nil, err
	}

	email := event.CustomerEmail
	if email == "" {
		providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
		email, err = s.billing.GetCustomerEmail(providerCtx, event.CustomerRef)
		cancel()
		if err != nil {
			return nil, mapBillingErr(err)
		}
	}
	if email == "" {
		return nil, ErrUnknownCustomer
	}

	tenant, err = s.tenants.GetUnlinkedByEmail(ctx, email)
	if errors.Is(err, repository.ErrTenantNotFound) {
		return nil, ErrUnknownCustomer
	}
	if err != nil {
		return nil, err
	}

	if err := s.link(ctx, tenant, event.CustomerRef); err != nil {
		if errors.Is(err, repository.ErrBillingCustomerInUse) {
			// linked concurrently by another delivery
			linked, getErr := s.tenants.GetByBillingCustomer(ctx, event.CustomerRef)
			return linked, mapTenantErr(getErr)
		}
		return nil, err
	}
	return tenant, nil
}

func (s *EntitlementService) link(ctx context.Context, tenant *models.Tenant, customerRef string) error {
	err := s.tenants.LinkBillingCustomer(ctx, tenant.ID, customerRef)
	if errors.Is(err, repository.ErrCustomerAlreadyLinked) {
		return ErrUnknownCustomer
	}
	if err != nil {
		return err
	}

	tenant.BillingCustomerRef = &customerRef
	log.Info().Str("tenant_id", tenant.ID.String()).Msg("Billing customer linked to tenant")
	return nil
}

func (s *EntitlementService) toEntitlementResponse(tenant *models.Tenant) *models.EntitlementResponse {
	resp := &models.EntitlementResponse{
		TenantID:   tenant.ID,
		Entitled:   EntitledAt(tenant, s.now()),
		Status:     tenant.SubscriptionStatus,
		ProductRef: tenant.ProductRef,
	}
	if tenant.CurrentPeriodEnd != nil {
		v := tenant.CurrentPeriodEnd.Format(time.RFC3339)
		resp.CurrentPeriodEnd = &v
	}
	return resp
}

func mapBillingErr(err error) error {
	switch {
	case errors.Is(err, clients.ErrCustomerNotFound):
		return ErrUnknownCustomer
	case errors.Is(err, clients.ErrBillingUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	default:
		return err
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
