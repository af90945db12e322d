package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-host-service/internal/cache"
	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxUsernameChanges counts the first assignment plus one later change
const maxUsernameChanges = 2

// usernames that collide with platform hostnames
var reservedUsernames = map[string]struct{}{
	"www": {},
}

// TenantDirectory is the source of truth for usernames and custom domain bindings
type TenantDirectory struct {
	store       TenantStore
	validator   *DomainValidator
	invalidator *InvalidationCoordinator
	now         func() time.Time
}

// NewTenantDirectory creates a new tenant directory
func NewTenantDirectory(store TenantStore, validator *DomainValidator, invalidator *InvalidationCoordinator) *TenantDirectory {
	return &TenantDirectory{
		store:       store,
		validator:   validator,
		invalidator: invalidator,
		now:         time.Now,
	}
}

// Get retrieves a tenant by id
func (d *TenantDirectory) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := d.store.GetByID(ctx, tenantID)
	return tenant, mapTenantErr(err)
}

// FindByUsername looks a tenant up by username, case-insensitively
func (d *TenantDirectory) FindByUsername(ctx context.Context, username string) (*models.Tenant, error) {
	tenant, err := d.store.GetByUsername(ctx, NormalizeUsername(username))
	return tenant, mapTenantErr(err)
}

// FindByCustomDomain looks a tenant up by its bound custom domain
func (d *TenantDirectory) FindByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	tenant, err := d.store.GetByCustomDomain(ctx, NormalizeDomain(domain))
	return tenant, mapTenantErr(err)
}

// CreateTenant registers a new account without a username
func (d *TenantDirectory) CreateTenant(ctx context.Context, email string) (*models.Tenant, error) {
	tenant := &models.Tenant{
		Email:              email,
		SubscriptionStatus: models.SubscriptionStatusNone,
	}
	if err := d.store.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	log.Info().Str("tenant_id", tenant.ID.String()).Msg("Tenant created")
	return tenant, nil
}

// BindCustomDomain records domain as the tenant's custom domain. Binding the
// domain the tenant already holds is a no-op.
func (d *TenantDirectory) BindCustomDomain(ctx context.Context, tenantID uuid.UUID, domain string) error {
	domain = NormalizeDomain(domain)
	if err := d.validator.ValidateDomainFormat(domain); err != nil {
		return err
	}

	tenant, err := d.store.GetByID(ctx, tenantID)
	if err != nil {
		return mapTenantErr(err)
	}

	if tenant.DomainValue() == domain {
		return nil
	}
	if tenant.HasCustomDomain() {
		return ErrTenantHasDomain
	}
	if !EntitledAt(tenant, d.now()) {
		return ErrNotEntitled
	}

	if err := d.store.SetCustomDomain(ctx, tenantID, domain); err != nil {
		if errors.Is(err, repository.ErrDomainTaken) {
			return ErrDomainAlreadyBound
		}
		return mapTenantErr(err)
	}

	log.Info().Str("tenant_id", tenantID.String()).Str("domain", domain).Msg("Custom domain bound")

	return d.invalidator.Invalidate(ctx, cache.DomainKey(domain), TenantKey(tenantID))
}

// UnbindCustomDomain clears the tenant's custom domain
func (d *TenantDirectory) UnbindCustomDomain(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := d.store.GetByID(ctx, tenantID)
	if err != nil {
		return mapTenantErr(err)
	}
	if !tenant.HasCustomDomain() {
		return ErrNotBound
	}

	domain := tenant.DomainValue()
	if err := d.store.ClearCustomDomain(ctx, tenantID, domain); err != nil {
		if errors.Is(err, repository.ErrDomainNotBound) {
			return ErrNotBound
		}
		return err
	}

	log.Info().Str("tenant_id", tenantID.String()).Str("domain", domain).Msg("Custom domain unbound")

	return d.invalidator.Invalidate(ctx, cache.DomainKey(domain), TenantKey(tenantID))
}

// AssignUsername sets the tenant's username. The first assignment is free and
// one later change is allowed.
func (d *TenantDirectory) AssignUsername(ctx context.Context, tenantID uuid.UUID, username string) (*models.Tenant, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	username = NormalizeUsername(username)
	if _, reserved := reservedUsernames[username]; reserved {
		return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidUsername, username)
	}

	// a concurrent change moves the counter; re-read and re-check once
	for attempt := 0; attempt < 2; attempt++ {
		tenant, err := d.store.GetByID(ctx, tenantID)
		if err != nil {
			return nil, mapTenantErr(err)
		}

		previous := tenant.UsernameValue()
		if previous == username {
			return tenant, nil
		}
		if tenant.UsernameChanges >= maxUsernameChanges {
			return nil, ErrUsernameLocked
		}

		err = d.store.SetUsername(ctx, tenantID, username, tenant.UsernameChanges)
		if errors.Is(err, repository.ErrUsernameConflict) {
			continue
		}
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set username: %w", err)
		}

		tenant.Username = &username
		tenant.UsernameChanges++

		log.Info().
			Str("tenant_id", tenantID.String()).
			Str("username", username).
			Str("previous", previous).
			Msg("Username assigned")

		keys := []string{cache.UsernameKey(username), TenantKey(tenantID)}
		if previous != "" {
			keys = append(keys, cache.UsernameKey(previous))
		}
		if err := d.invalidator.Invalidate(ctx, keys...); err != nil {
			return nil, err
		}
		return tenant, nil
	}

	return nil, ErrUsernameLocked
}

// DeleteTenant soft-deletes the tenant and releases its username and domain
func (d *TenantDirectory) DeleteTenant(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := d.store.GetByID(ctx, tenantID)
	if err != nil {
		return mapTenantErr(err)
	}

	if err := d.store.Delete(ctx, tenantID); err != nil {
		return mapTenantErr(err)
	}

	log.Info().Str("tenant_id", tenantID.String()).Msg("Tenant deleted")

	return d.invalidator.InvalidateTenant(ctx, tenant)
}

// Invalidate drops every cached entry of the tenant after a change made
// outside this service, such as a profile or theme edit
func (d *TenantDirectory) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := d.store.GetByID(ctx, tenantID)
	if err != nil {
		return mapTenantErr(err)
	}
	return d.invalidator.InvalidateTenant(ctx, tenant)
}

func mapTenantErr(err error) error {
	if errors.Is(err, repository.ErrTenantNotFound) {
		return ErrTenantNotFound
	}
	return err
}
