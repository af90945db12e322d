package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/repository"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BindingService drives custom domain binding attempts through the edge provider
type BindingService struct {
	bindings    BindingStore
	tenants     TenantStore
	directory   *TenantDirectory
	validator   *DomainValidator
	edge        EdgeProvider
	publisher   BindingEventPublisher
	metrics     *metrics.Metrics
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewBindingService creates a new binding service. publisher may be nil.
func NewBindingService(
	cfg *config.Config,
	bindings BindingStore,
	tenants TenantStore,
	directory *TenantDirectory,
	validator *DomainValidator,
	edge EdgeProvider,
	publisher BindingEventPublisher,
	m *metrics.Metrics,
) *BindingService {
	return &BindingService{
		bindings:    bindings,
		tenants:     tenants,
		directory:   directory,
		validator:   validator,
		edge:        edge,
		publisher:   publisher,
		metrics:     m,
		timeout:     cfg.Edge.Timeout,
		maxAttempts: cfg.Limits.MaxVerificationAttempts,
		now:         time.Now,
	}
}

// RequestBinding starts a binding attempt for domain and registers it with
// the edge provider. On a provider failure the attempt is returned in the
// Failed state together with the error.
func (s *BindingService) RequestBinding(ctx context.Context, tenantID uuid.UUID, domain string, createdBy uuid.UUID) (*models.DomainBinding, error) {
	domain = NormalizeDomain(domain)
	if err := s.validator.ValidateDomainFormat(domain); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, mapTenantErr(err)
	}
	if !EntitledAt(tenant, s.now()) {
		return nil, ErrNotEntitled
	}

	if tenant.HasCustomDomain() {
		if tenant.DomainValue() != domain {
			return nil, ErrTenantHasDomain
		}
		binding, err := s.bindings.GetLatestByTenant(ctx, tenantID)
		if err != nil {
			return nil, mapBindingErr(err)
		}
		return binding, nil
	}

	owner, err := s.tenants.GetByCustomDomain(ctx, domain)
	if err == nil && owner.ID != tenantID {
		return nil, ErrDomainAlreadyBound
	}
	if err != nil && !errors.Is(err, repository.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check domain owner: %w", err)
	}

	binding := &models.DomainBinding{
		TenantID:    tenantID,
		Domain:      domain,
		DomainType:  s.validator.DetectDomainType(domain),
		Status:      models.BindingStatusRequested,
		RequestedAt: s.now(),
		CreatedBy:   createdBy,
	}
	if err := s.bindings.Create(ctx, binding); err != nil {
		if errors.Is(err, repository.ErrBindingInFlight) {
			return nil, ErrBindingInProgress
		}
		return nil, fmt.Errorf("failed to create binding: %w", err)
	}

	s.metrics.BindingTransition(string(models.BindingStatusRequested))
	s.logActivity(ctx, binding, "requested", "success", "Custom domain requested", 0)
	s.publish(events.DomainAdded, binding, "")

	if err := s.transition(ctx, binding, models.BindingStatusProviderRegistering, nil); err != nil {
		return nil, err
	}

	start := time.Now()
	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	hostname, err := s.edge.RegisterHostname(providerCtx, domain)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		var rejection *clients.EdgeRejectionError
		if errors.As(err, &rejection) {
			s.fail(ctx, binding, rejection.Reason)
			return binding, &ProviderRejectionError{Reason: rejection.Reason}
		}
		log.Error().Err(err).Str("tenant_id", tenantID.String()).Str("domain", domain).Msg("Edge provider registration failed")
		s.fail(ctx, binding, "edge provider unavailable, please retry")
		return binding, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := s.transition(ctx, binding, models.BindingStatusPendingVerification, map[string]interface{}{
		"provider_ref":         hostname.ID,
		"verification_records": hostname.Records(),
	}); err != nil {
		// the attempt moved on without recording the hostname
		orphan := *binding
		orphan.ProviderRef = hostname.ID
		s.releaseHostname(ctx, &orphan)
		return nil, err
	}
	binding.ProviderRef = hostname.ID
	binding.VerificationRecords = hostname.Records()

	s.logActivity(ctx, binding, "provider_registered", "success", "Hostname registered with edge provider, awaiting DNS verification", elapsed)

	if hostname.Verified() {
		return s.complete(ctx, binding, hostname)
	}
	return binding, nil
}

// CheckVerification polls the provider for the domain's pending attempt.
// A provider error leaves the attempt untouched.
func (s *BindingService) CheckVerification(ctx context.Context, domain string) (*models.DomainBinding, error) {
	binding, err := s.bindings.GetPendingByDomain(ctx, NormalizeDomain(domain))
	if err != nil {
		return nil, mapBindingErr(err)
	}
	return s.CheckBinding(ctx, binding)
}

// CheckTenantVerification polls the provider for the tenant's in-flight attempt
func (s *BindingService) CheckTenantVerification(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error) {
	binding, err := s.bindings.GetInFlightByTenant(ctx, tenantID)
	if errors.Is(err, repository.ErrBindingNotFound) {
		// nothing pending: report the latest outcome
		latest, latestErr := s.bindings.GetLatestByTenant(ctx, tenantID)
		return latest, mapBindingErr(latestErr)
	}
	if err != nil {
		return nil, err
	}
	if binding.Status != models.BindingStatusPendingVerification {
		return binding, nil
	}
	return s.CheckBinding(ctx, binding)
}

// CheckBinding polls the provider for one pending attempt
func (s *BindingService) CheckBinding(ctx context.Context, binding *models.DomainBinding) (*models.DomainBinding, error) {
	if binding.Status != models.BindingStatusPendingVerification {
		return binding, nil
	}

	start := time.Now()
	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	hostname, err := s.edge.GetHostname(providerCtx, binding.ProviderRef)
	cancel()

	if errors.Is(err, clients.ErrHostnameNotFound) {
		s.fail(ctx, binding, "hostname is no longer registered with the edge provider")
		return binding, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("domain", binding.Domain).Msg("Verification poll failed")
		return binding, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	checkedAt := s.now()
	if err := s.bindings.RecordCheck(ctx, binding.ID, checkedAt); err != nil {
		log.Warn().Err(err).Str("domain", binding.Domain).Msg("Failed to record verification check")
	}
	binding.LastCheckedAt = &checkedAt
	binding.CheckAttempts++

	if reason, failed := hostname.FailureReason(); failed {
		s.fail(ctx, binding, reason)
		return binding, nil
	}

	if hostname.Verified() {
		return s.complete(ctx, binding, hostname)
	}

	if s.maxAttempts > 0 && binding.CheckAttempts >= s.maxAttempts {
		s.fail(ctx, binding, fmt.Sprintf("domain was not verified after %d checks", binding.CheckAttempts))
		return binding, nil
	}

	records := hostname.Records()
	if len(records) > 0 {
		err := s.bindings.Transition(ctx, binding.ID, models.BindingStatusPendingVerification,
			models.BindingStatusPendingVerification, map[string]interface{}{"verification_records": records})
		if err == nil {
			binding.VerificationRecords = records
		}
	}

	s.logActivity(ctx, binding, "verification_checked", "pending", "Waiting for DNS records", time.Since(start))
	return binding, nil
}

// complete binds the verified domain in the directory and marks the attempt Verified
func (s *BindingService) complete(ctx context.Context, binding *models.DomainBinding, hostname *clients.CustomHostname) (*models.DomainBinding, error) {
	err := s.directory.BindCustomDomain(ctx, binding.TenantID, binding.Domain)
	switch {
	case errors.Is(err, ErrNotEntitled):
		s.fail(ctx, binding, "subscription is not active")
		return binding, err
	case errors.Is(err, ErrDomainAlreadyBound):
		s.fail(ctx, binding, "domain is bound to another account")
		return binding, err
	case errors.Is(err, ErrTenantHasDomain):
		s.fail(ctx, binding, "account already has another custom domain")
		return binding, err
	case err != nil:
		log.Error().Err(err).Str("tenant_id", binding.TenantID.String()).Str("domain", binding.Domain).Msg("Failed to bind verified domain")
		return binding, fmt.Errorf("failed to bind domain: %w", err)
	}

	verifiedAt := s.now()
	records := hostname.Records()
	err = s.transition(ctx, binding, models.BindingStatusVerified, map[string]interface{}{
		"verified_at":          verifiedAt,
		"verification_records": records,
		"reason":               "",
	})
	if errors.Is(err, repository.ErrStaleTransition) {
		// removed while we were binding: undo the bind
		log.Warn().Str("tenant_id", binding.TenantID.String()).Str("domain", binding.Domain).Msg("Binding cancelled during verification, unbinding")
		if unbindErr := s.directory.UnbindCustomDomain(ctx, binding.TenantID); unbindErr != nil && !errors.Is(unbindErr, ErrNotBound) {
			log.Error().Err(unbindErr).Str("tenant_id", binding.TenantID.String()).Msg("Failed to unbind cancelled domain")
		}
		return binding, err
	}
	if err != nil {
		return binding, err
	}
	binding.VerifiedAt = &verifiedAt
	binding.VerificationRecords = records
	binding.Reason = ""

	s.logActivity(ctx, binding, "verified", "success", "Domain verified and bound", 0)
	s.publish(events.DomainVerified, binding, models.BindingStatusPendingVerification)
	s.publish(events.DomainActivated, binding, models.BindingStatusPendingVerification)

	log.Info().Str("tenant_id", binding.TenantID.String()).Str("domain", binding.Domain).Msg("Custom domain verified")
	return binding, nil
}

// RemoveBinding cancels any in-flight attempt, unbinds the domain and
// deregisters it with the edge provider. Provider failures are only logged.
func (s *BindingService) RemoveBinding(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return mapTenantErr(err)
	}

	var removed []*models.DomainBinding

	inFlight, err := s.bindings.GetInFlightByTenant(ctx, tenantID)
	switch {
	case err == nil:
		if err := s.transition(ctx, inFlight, models.BindingStatusRemoved, map[string]interface{}{"reason": "cancelled"}); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to cancel in-flight binding")
		} else {
			removed = append(removed, inFlight)
		}
	case !errors.Is(err, repository.ErrBindingNotFound):
		return err
	}

	if tenant.HasCustomDomain() {
		if err := s.directory.UnbindCustomDomain(ctx, tenantID); err != nil && !errors.Is(err, ErrNotBound) {
			return err
		}

		latest, err := s.bindings.GetLatestByTenant(ctx, tenantID)
		if err == nil && latest.Status == models.BindingStatusVerified {
			if err := s.transition(ctx, latest, models.BindingStatusRemoved, nil); err != nil {
				log.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("Failed to mark binding removed")
			} else {
				removed = append(removed, latest)
			}
		}
	}

	if len(removed) == 0 && !tenant.HasCustomDomain() {
		return ErrNotBound
	}

	for _, binding := range removed {
		s.releaseHostname(ctx, binding)
		s.logActivity(ctx, binding, "removed", "success", "Custom domain removed", 0)
		s.publish(events.DomainRemoved, binding, "")
	}
	return nil
}

// GetBinding returns the tenant's current or latest attempt with the DNS records to configure
func (s *BindingService) GetBinding(ctx context.Context, tenantID uuid.UUID) (*models.BindingResponse, error) {
	binding, err := s.bindings.GetLatestByTenant(ctx, tenantID)
	if err != nil {
		return nil, mapBindingErr(err)
	}

	resp := models.NewBindingResponse(binding)
	resp.DNSRecords = s.validator.GetRequiredDNSRecords(binding)
	return resp, nil
}

// ListActivities returns the tenant's binding activity, newest first
func (s *BindingService) ListActivities(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.DomainActivity, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.bindings.GetActivities(ctx, tenantID, limit)
}

// ValidateDomain checks a domain without creating an attempt
func (s *BindingService) ValidateDomain(ctx context.Context, tenantID uuid.UUID, req *models.ValidateDomainRequest) (*models.ValidateDomainResponse, error) {
	response := &models.ValidateDomainResponse{}

	domain := NormalizeDomain(req.Domain)
	if err := s.validator.ValidateDomainFormat(domain); err != nil {
		response.Message = err.Error()
		return response, nil
	}
	response.Valid = true

	exists, err := s.validator.CheckDomainExists(ctx, domain)
	if err != nil {
		log.Warn().Err(err).Str("domain", domain).Msg("Failed to check domain existence, continuing anyway")
		exists = true
	}
	response.DomainExists = exists
	if !exists {
		response.Message = "This domain does not appear to be registered. Please verify you own this domain and try again."
		return response, nil
	}

	owner, err := s.tenants.GetByCustomDomain(ctx, domain)
	if err != nil && !errors.Is(err, repository.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check domain owner: %w", err)
	}
	if owner != nil && owner.ID != tenantID {
		response.Message = "This domain is already connected to another portfolio"
		return response, nil
	}
	response.Available = true

	domainType := s.validator.DetectDomainType(domain)
	response.DomainType = string(domainType)
	response.DNSRecords = s.validator.RoutingRecords(domain, domainType)
	response.Message = "Domain is valid and available"

	if req.CheckDNS {
		configured, message := s.validator.IsRoutingConfigured(ctx, domain, domainType)
		for i := range response.DNSRecords {
			if response.DNSRecords[i].Host == domain {
				response.DNSRecords[i].IsVerified = configured
			}
		}
		response.Message = message
	}

	return response, nil
}

// PendingBindings lists attempts awaiting verification for the background poller
func (s *BindingService) PendingBindings(ctx context.Context, limit int) ([]models.DomainBinding, error) {
	return s.bindings.ListPendingVerification(ctx, limit)
}

// AbandonStale fails in-flight attempts requested more than olderThan ago
func (s *BindingService) AbandonStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.bindings.ListStaleInFlight(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale bindings: %w", err)
	}

	abandoned := 0
	for i := range stale {
		binding := &stale[i]
		if s.fail(ctx, binding, fmt.Sprintf("domain was not verified within %s", olderThan)) {
			abandoned++
		}
	}
	return abandoned, nil
}

// transition moves binding to status and keeps the in-memory copy in step
func (s *BindingService) transition(ctx context.Context, binding *models.DomainBinding, to models.BindingStatus, fields map[string]interface{}) error {
	from := binding.Status
	if err := s.bindings.Transition(ctx, binding.ID, from, to, fields); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return err
		}
		return fmt.Errorf("failed to move binding from %s to %s: %w", from, to, err)
	}
	binding.Status = to
	s.metrics.BindingTransition(string(to))
	return nil
}

// fail moves an in-flight attempt to Failed and releases its provider hostname
func (s *BindingService) fail(ctx context.Context, binding *models.DomainBinding, reason string) bool {
	previous := binding.Status
	if err := s.transition(ctx, binding, models.BindingStatusFailed, map[string]interface{}{"reason": reason}); err != nil {
		log.Warn().Err(err).Str("domain", binding.Domain).Str("from", string(previous)).Msg("Failed to mark binding failed")
		return false
	}
	binding.Reason = reason

	log.Warn().
		Str("tenant_id", binding.TenantID.String()).
		Str("domain", binding.Domain).
		Str("reason", reason).
		Msg("Domain binding failed")

	s.releaseHostname(ctx, binding)
	s.logActivity(ctx, binding, "failed", "failed", reason, 0)
	s.publish(events.DomainFailed, binding, previous)
	return true
}

// releaseHostname deregisters the attempt's provider hostname unless another
// tenant holds or is verifying the same domain
func (s *BindingService) releaseHostname(ctx context.Context, binding *models.DomainBinding) {
	if binding.ProviderRef == "" {
		return
	}

	if owner, err := s.tenants.GetByCustomDomain(ctx, binding.Domain); err == nil && owner.ID != binding.TenantID {
		return
	}
	if pending, err := s.bindings.GetPendingByDomain(ctx, binding.Domain); err == nil && pending.TenantID != binding.TenantID {
		return
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.edge.DeleteHostname(providerCtx, binding.ProviderRef); err != nil {
		log.Warn().Err(err).Str("domain", binding.Domain).Msg("Failed to deregister hostname with edge provider")
	}
}

func (s *BindingService) logActivity(ctx context.Context, binding *models.DomainBinding, action, status, message string, duration time.Duration) {
	activity := &models.DomainActivity{
		BindingID: binding.ID,
		TenantID:  binding.TenantID,
		Domain:    binding.Domain,
		Action:    action,
		Status:    status,
		Message:   message,
		Duration:  duration.Milliseconds(),
		CreatedAt: s.now(),
	}

	if err := s.bindings.LogActivity(ctx, activity); err != nil {
		log.Warn().Err(err).Str("domain", binding.Domain).Str("action", action).Msg("Failed to log activity")
	}
}

func (s *BindingService) publish(eventType string, binding *models.DomainBinding, previous models.BindingStatus) {
	if s.publisher == nil {
		log.Debug().Str("event", eventType).Msg("Event publisher not configured, skipping event")
		return
	}
	s.publisher.PublishBinding(eventType, binding, previous)
}

func mapBindingErr(err error) error {
	if errors.Is(err, repository.ErrBindingNotFound) {
		return ErrBindingNotFound
	}
	return err
}
